package templates

import (
	"github.com/a-h/templ"
)

const loginHTML = `
{{define "login"}}{{template "header" .Page}}<section class="card"><h1>Sign in</h1>` +
	`{{if .Expired}}<div class="banner info">Your session has expired. Please log in again.</div>{{end}}` +
	`{{with .Error}}<div class="banner error">{{.}}</div>{{end}}` +
	`<form method="post" action="/session"><input type="hidden" name="next" value="{{.Next}}">` +
	`<label>Access token<textarea name="token" rows="4" required></textarea></label>` +
	`<button type="submit">Continue</button></form></section>{{template "footer"}}{{end}}
`

// LoginData is the state of the login page.
type LoginData struct {
	Expired bool
	Error   string
	Next    string
}

// Login renders the token form. The identity provider issues the token; this
// page only stores it in the session cookie.
func Login(data LoginData) templ.Component {
	return view("login", struct {
		LoginData
		Page pageData
	}{
		LoginData: data,
		Page:      pageData{Title: "Sign in"},
	})
}
