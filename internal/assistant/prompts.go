package assistant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"HealthAssist/internal/capture"
)

// TipPrompt asks for the tip of the day
const TipPrompt = "Give a short healthy eating tip (1 line)."

// remedyImagePreview is how many base64 characters of a skin photo are
// included in the remedy prompt
const remedyImagePreview = 300

// DietPreferences are the inputs of a diet plan request
type DietPreferences struct {
	Age         string
	Weight      string
	DietType    string
	Allergies   string
	CalorieGoal string
	HealthGoal  string
}

// Validate requires age and weight
func (p DietPreferences) Validate() error {
	if strings.TrimSpace(p.Age) == "" || strings.TrimSpace(p.Weight) == "" {
		return fmt.Errorf("age and weight are required")
	}
	return nil
}

var dietTypeLabels = map[string]string{
	"veg":           "Vegetarian",
	"non-veg":       "Non-Vegetarian",
	"vegan":         "Vegan",
	"keto":          "Keto",
	"paleo":         "Paleo",
	"mediterranean": "Mediterranean",
}

// DietTypeLabel returns the display name of a diet type code
func DietTypeLabel(code string) string {
	if label, ok := dietTypeLabels[code]; ok {
		return label
	}
	return code
}

// DietPlanPrompt builds the diet plan request
func DietPlanPrompt(p DietPreferences) string {
	allergies := p.Allergies
	if allergies == "" {
		allergies = "None"
	}
	return fmt.Sprintf(`Create a personalized diet plan with:
Age: %s
Weight: %s
Diet Type: %s
Allergies: %s
Calorie Goal: %s
Health Goal: %s

Include:
- Breakfast
- Lunch
- Snacks
- Dinner
- Nutrition Summary`, p.Age, p.Weight, p.DietType, allergies, p.CalorieGoal, p.HealthGoal)
}

var nutritionSummaryRe = regexp.MustCompile(`(?i)nutrition summary`)

// SplitPlan separates a diet plan reply into its non-blank plan lines and
// the nutrition summary, which starts at the first line mentioning it
func SplitPlan(text string) (plan []string, summary string) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	for i, line := range lines {
		if nutritionSummaryRe.MatchString(line) {
			return lines[:i], strings.Join(lines[i:], "\n")
		}
	}
	return lines, ""
}

// defaultWeightKg is assumed when no usable weight was given
const defaultWeightKg = 70

// RecommendedWater returns the suggested daily intake in millilitres
func RecommendedWater(weight string) int {
	kg := leadingInt(strings.TrimSpace(weight))
	if kg <= 0 {
		kg = defaultWeightKg
	}
	return kg * 30
}

// leadingInt parses the integer prefix of s, so "72kg" is 72
func leadingInt(s string) int {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// ReportPrompt asks for a structured analysis of a medical report image
func ReportPrompt(img capture.Image) string {
	return fmt.Sprintf(`You are a medical document specialist.
Analyze this medical report image (Base64 encoded):
%s
Generate a professional structured report including:
1. Person Details, 2. Health Findings, 3. Diagnosis Summary,
4. Observations, 5. Health Tips, 6. Warnings, 7. Action Steps.`, img.Base64)
}

// RemedyPrompt asks for home remedies for a described skin problem
func RemedyPrompt(problem string) string {
	return fmt.Sprintf("Suggest 4–6 natural home remedies for: %s. Use bullet points and simple ingredients.", strings.TrimSpace(problem))
}

// RemedyImagePrompt asks for home remedies for a photographed skin
// condition. Only a short prefix of the image is included.
func RemedyImagePrompt(img capture.Image) string {
	preview := img.DataURI()
	if len(preview) > remedyImagePreview {
		preview = preview[:remedyImagePreview]
	}
	return "Analyze the skin condition from this image. Then suggest 4–6 home remedies using common kitchen ingredients." +
		"\n\nHere is the image in base64 format (for text-only interpretation):\n" + preview + "..."
}

// ImagePlaceholder stands in for an image in replayed chat history
const ImagePlaceholder = "[Image]"

// TabletImagePrompt asks for identification of a tablet or tonic
func TabletImagePrompt(img capture.Image) string {
	return fmt.Sprintf(`You are a **medical analysis assistant**. The user uploaded a tablet/tonic image.
Analyze the image and answer in **very simple English**:

1. **Medicine Name (if readable)**
2. **Short description of the tablet/tonic**
3. **What it is used for**
4. **How to use it (general safe dosage)**
5. **Benefits**
6. **Common side effects**
7. **Warnings / when to avoid it**

If the image is unclear, reply: "Image not clear. Please upload a clearer picture."

Image (base64): %s`, img.Base64)
}

// DemoReportAnalysis is shown by the report page when no API key is configured
const DemoReportAnalysis = `## Demo Analysis Result
**Note:** No API key detected. Using mock data for demonstration.
## Findings
- **Blood Pressure:** 120/80 (Normal)
- **Glucose:** 95 mg/dL (Normal)
- **Cholesterol:** Slightly elevated
## Recommendations
Maintain a balanced diet and regular exercise. Consult a physician for the cholesterol levels.`
