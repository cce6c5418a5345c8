package capture

import "github.com/atotto/clipboard"

// replaced in tests
var (
	clipboardUnsupported = func() bool { return clipboard.Unsupported }
	writeClipboard       = clipboard.WriteAll
)

// CopyText puts text on the system clipboard
func CopyText(text string) error {
	if clipboardUnsupported() {
		return &CaptureUnavailableError{Device: "clipboard", Reason: "no clipboard utility found"}
	}
	if err := writeClipboard(text); err != nil {
		return &CaptureUnavailableError{Device: "clipboard", Reason: err.Error()}
	}
	return nil
}
