package assist

// QueryRequest is the body of POST /query. Audio and image carry raw base64
// or a data URL.
type QueryRequest struct {
	Text  string `json:"text,omitempty" example:"What's in front of me?"`
	Audio string `json:"audio,omitempty"`
	Image string `json:"image,omitempty"`
}

type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type DetectedObject struct {
	Object     string      `json:"object" example:"chair"`
	Confidence float64     `json:"confidence" example:"0.92"`
	Position   BoundingBox `json:"position"`
}

type QueryResponse struct {
	Reply string `json:"reply"`
	// Object is the top detection, or a sentinel such as "no image provided".
	Object          string           `json:"object" example:"chair"`
	DetectedObjects []DetectedObject `json:"detected_objects"`
	Location        string           `json:"location" example:"You are in Pune, Maharashtra, India"`
	// SpeechRecognized is set when the utterance did not come from the text field.
	SpeechRecognized string `json:"speech_recognized,omitempty"`
	SceneStatus      string `json:"scene_status" example:"detected"`
}

type TranscribeRequest struct {
	Audio string `json:"audio"`
}

type TranscribeResponse struct {
	Text string `json:"text"`
}

type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Message string `json:"message" example:"Server is running"`
}
