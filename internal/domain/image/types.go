package image

// Frame is a validated camera image ready for downstream consumers.
type Frame struct {
	Data   []byte
	Base64 string
	Format string
	Width  int
	Height int
}

// MIMEType returns the media type used for inline attachments.
func (f *Frame) MIMEType() string {
	switch f.Format {
	case "jpg", "jpeg", "":
		return "image/jpeg"
	default:
		return "image/" + f.Format
	}
}

// DataURL renders the frame as a data URL for OpenAI-style image parts.
func (f *Frame) DataURL() string {
	return "data:" + f.MIMEType() + ";base64," + f.Base64
}

// ValidationResult captures the outcome of security validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	MIME         string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}
