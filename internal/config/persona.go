package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/ernie-chat/backend/internal/model/persona"
)

// YAML keys of the persona file. The model key keeps its historical name.
const (
	KeyAPIKey         = "api_key"
	KeyBotName        = "bot_name"
	KeyBotRole        = "bot_role"
	KeyWelcomeWords   = "welcome_words"
	KeyModelName      = "model_name_text_generate"
	KeySensitiveWords = "sensitive_words"
)

// DefaultModel is used when the persona file names no model.
const DefaultModel = "ernie-4.0-8k"

// LoadPersona 读取 YAML 人设文件。文件缺失或无法解析时返回错误，调用方应终止启动。
func LoadPersona(path string, apiKeyOverride string) (persona.Persona, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return persona.Persona{}, fmt.Errorf("read persona config: %w", err)
	}

	var p persona.Persona
	if err := yaml.Unmarshal(b, &p); err != nil {
		return persona.Persona{}, fmt.Errorf("parse persona config: %w", err)
	}

	if apiKeyOverride != "" {
		p.APIKey = apiKeyOverride
	}
	if strings.TrimSpace(p.Model) == "" {
		p.Model = DefaultModel
	}
	if p.SensitiveWords == nil {
		p.SensitiveWords = []string{}
	}
	return p, nil
}

// SavePersonaFields 把可编辑的人设字段写回文件，其余键与注释保持不变。
func SavePersonaFields(path string, p persona.Persona) error {
	return RewriteKeys(path, []KeyValue{
		{Key: KeyBotName, Value: p.Name},
		{Key: KeyBotRole, Value: p.Role},
		{Key: KeyWelcomeWords, Value: p.WelcomeWords},
		{Key: KeyModelName, Value: p.Model},
	})
}
