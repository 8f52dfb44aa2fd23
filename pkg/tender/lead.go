package tender

// Signup is a lead captured from the marketing site.
type Signup struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Company string `json:"company"`
	Plan    string `json:"plan"`
}

// ContactMessage is a contact-form submission relayed to the team inbox.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}
