package model

import "strings"

// StatusRow is one line of the external status sheet.
type StatusRow struct {
	TaskID           string `json:"task_id"`
	TaskNo           string `json:"task_no"`
	ReportName       string `json:"report_name"`
	Status           string `json:"status"`
	DeliveryTime     string `json:"delivery_time"`
	PrimaryAuthor    string `json:"primary_author"`
	SecondaryConfirm string `json:"secondary_confirm"`
	Deliverer        string `json:"deliverer"`
	RowNumber        int    `json:"row_number"`
}

// Authors lists the non-empty person columns in sheet order.
func (r StatusRow) Authors() []string {
	var out []string
	for _, v := range []string{r.PrimaryAuthor, r.SecondaryConfirm, r.Deliverer} {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
