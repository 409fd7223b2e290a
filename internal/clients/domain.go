// Package clients is a read-only shim over the client directory, which is
// owned by the dashboard's CRUD screens. Orders only need existence checks
// and display names.
package clients

import "time"

// Client is a directory entry referenced by orders.
type Client struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
