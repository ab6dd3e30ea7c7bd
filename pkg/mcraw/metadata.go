package mcraw

import "encoding/json"

// CameraMetadata holds the camera and device properties from the container
// METADATA record. Field tags match the on-disk JSON, including the
// misspelled sensor arrangement key.
type CameraMetadata struct {
	BlackLevel        []float64 `json:"blackLevel"`
	WhiteLevel        float64   `json:"whiteLevel"`
	SensorArrangement string    `json:"sensorArrangment"`
	ColorMatrix1      []float64 `json:"colorMatrix1"`
	ColorMatrix2      []float64 `json:"colorMatrix2"`
	ForwardMatrix1    []float64 `json:"forwardMatrix1"`
	ForwardMatrix2    []float64 `json:"forwardMatrix2"`
	Software          string    `json:"software"`
	Orientation       int       `json:"orientation"`
	ExtraData         ExtraData `json:"extraData"`
}

// ExtraData holds the audio format of the capture.
type ExtraData struct {
	AudioSampleRate int `json:"audioSampleRate"`
	AudioChannels   int `json:"audioChannels"`
}

// FrameMetadata holds the per-frame JSON that follows every BUFFER record.
type FrameMetadata struct {
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	CompressionType int       `json:"compressionType"`
	AsShotNeutral   []float64 `json:"asShotNeutral"`
}

func parseCameraMetadata(buf []byte) (CameraMetadata, error) {
	var meta CameraMetadata
	if err := json.Unmarshal(buf, &meta); err != nil {
		return CameraMetadata{}, err
	}
	if meta.SensorArrangement == "" {
		meta.SensorArrangement = "rggb"
	}
	return meta, nil
}
