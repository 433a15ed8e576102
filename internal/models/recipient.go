package models

// Recipient is one spreadsheet row reduced to a normalized phone number
// plus its original column values for template expansion.
type Recipient struct {
	Row       int               `json:"row"`   // 1-based spreadsheet row index
	Phone     string            `json:"phone"` // E.164, e.g. "+6591234567"
	Raw       string            `json:"raw"`   // raw column value before normalization
	Values    map[string]string `json:"values"`
	Message   string            `json:"message"`    // template expanded against Values
	ImageURL  string            `json:"image_url"`  // optional per-row image source
	ImagePath string            `json:"image_path"` // staged local copy of ImageURL, set before the send loop
}

// SkippedRow records a row excluded from the send set because its phone
// value failed normalization.
type SkippedRow struct {
	Row int    `json:"row"`
	Raw string `json:"raw"`
}
