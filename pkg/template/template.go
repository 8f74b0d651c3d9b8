// Package template provides templating functionality for dynamic node configuration.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/cascadehq/cascade/pkg/execution"
)

// RenderWithContext renders a template string against an execution context's
// data view, adding the environment under .env.
func RenderWithContext(input string, execCtx *execution.Context) (any, error) {
	data := execCtx.TemplateData()
	data["env"] = getEnvVars()

	return Render(input, data)
}

// RenderMap renders every string value of a config map with RenderWithContext,
// recursing into nested maps. Non-string values pass through untouched.
func RenderMap(config map[string]any, execCtx *execution.Context) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		switch typed := value.(type) {
		case string:
			result, err := RenderWithContext(typed, execCtx)
			if err != nil {
				return nil, fmt.Errorf("failed to render config key %q: %w", key, err)
			}

			rendered[key] = result
		case map[string]any:
			result, err := RenderMap(typed, execCtx)
			if err != nil {
				return nil, err
			}

			rendered[key] = result
		default:
			rendered[key] = value
		}
	}

	return rendered, nil
}

// Render executes a template string against arbitrary data. Results that
// look like JSON, numbers or booleans come back typed; everything else is a
// string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)

				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	// Try to parse as JSON if it looks like JSON
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	// Try to parse as number
	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	// Try to parse as boolean
	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
