package model

// ImageUsage is today's generated image count for a user against the plan limit.
type ImageUsage struct {
	Date  string `json:"date"` // YYYY-MM-DD, UTC
	Used  int    `json:"used"`
	Limit int    `json:"limit"`
}

func (u ImageUsage) Remaining() int {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}
