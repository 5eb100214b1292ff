package snapshot

import "time"

// Baseline is a saved set of window screenshots.
type Baseline struct {
	Name      string       `json:"name"`
	Created   time.Time    `json:"created"`
	Threshold float64      `json:"threshold"`
	Windows   []WindowShot `json:"windows"`
}

// WindowShot records one window of a baseline.
type WindowShot struct {
	Label  string `json:"label"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	File   string `json:"file"`
}

// Capture is a freshly taken PNG screenshot of one window.
type Capture struct {
	Label string
	Title string
	URL   string
	PNG   []byte
}

// Comparison is the result for one baseline window.
type Comparison struct {
	Label       string  `json:"label"`
	DiffPercent float64 `json:"diff_percent"`
	Changed     bool    `json:"changed"`
	Description string  `json:"description"`
	DiffFile    string  `json:"diff_file,omitempty"`
}

// Report summarizes a comparison against a baseline.
type Report struct {
	Baseline    string       `json:"baseline"`
	Created     time.Time    `json:"created"`
	Windows     []Comparison `json:"windows"`
	Changed     int          `json:"changed"`
	Unchanged   int          `json:"unchanged"`
	AverageDiff float64      `json:"average_diff"`
	Regressions bool         `json:"regressions"`
}
