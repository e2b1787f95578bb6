package types

import "time"

// Frame is a single JPEG frame captured from a source.
type Frame struct {
	Camera int       // index of the source inside a scan
	Seq    int       // capture order, unique within a scan
	At     time.Time // capture time
	Data   []byte
}

// FaceResult is one face found by the embedding engine.
type FaceResult struct {
	Loc  [4]int    `json:"loc"`  // [x1, y1, x2, y2] pixel box
	Vec  []float64 `json:"vec"`  // face embedding
	Prob float64   `json:"prob"` // detector confidence
}

// Area returns the pixel area of the face box.
func (f FaceResult) Area() int {
	return (f.Loc[2] - f.Loc[0]) * (f.Loc[3] - f.Loc[1])
}

// Detection is one object found by the detection engine.
type Detection struct {
	Class int        `json:"class"`
	Conf  float64    `json:"conf"`
	Box   [4]float64 `json:"xyxyn"` // normalised [x1, y1, x2, y2]
}

// ErrorResult captures the error object returned by an engine on failure.
type ErrorResult struct {
	Error string `json:"error"`
}
