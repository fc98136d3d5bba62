package persona

// Persona captures the bot attributes loaded from the YAML configuration file.
type Persona struct {
	APIKey         string   `yaml:"api_key" json:"-"`
	Name           string   `yaml:"bot_name" json:"bot_name"`
	Role           string   `yaml:"bot_role" json:"bot_role"`
	WelcomeWords   string   `yaml:"welcome_words" json:"welcome_words"`
	Model          string   `yaml:"model_name_text_generate" json:"model_name_text_generate"`
	SensitiveWords []string `yaml:"sensitive_words" json:"sensitive_words"`
}

// Update carries the fields editable from the front-end. Nil means unchanged.
// Sensitive words and the API key are deliberately absent.
type Update struct {
	Name         *string `json:"bot_name,omitempty"`
	Role         *string `json:"bot_role,omitempty"`
	WelcomeWords *string `json:"welcome_words,omitempty"`
	Model        *string `json:"model_name_text_generate,omitempty"`
}

// Empty reports whether the update touches nothing.
func (u Update) Empty() bool {
	return u.Name == nil && u.Role == nil && u.WelcomeWords == nil && u.Model == nil
}

// Apply returns a copy of p with the update applied.
func (p Persona) Apply(u Update) Persona {
	next := p.Clone()
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.Role != nil {
		next.Role = *u.Role
	}
	if u.WelcomeWords != nil {
		next.WelcomeWords = *u.WelcomeWords
	}
	if u.Model != nil {
		next.Model = *u.Model
	}
	return next
}

// Clone deep-copies the sensitive word slice.
func (p Persona) Clone() Persona {
	p.SensitiveWords = append([]string(nil), p.SensitiveWords...)
	return p
}

// Public strips the secret fields; the result is safe to hand to clients.
func (p Persona) Public() Persona {
	out := p.Clone()
	out.APIKey = ""
	if out.SensitiveWords == nil {
		out.SensitiveWords = []string{}
	}
	return out
}
