package deployment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)

// =============================================================================
// CompileTemplate / Render Tests
// =============================================================================

func TestTemplate_FunctionName(t *testing.T) {
	tmpl, err := CompileTemplate("functions/${functionName}/src")
	require.NoError(t, err)
	assert.Equal(t, "functions/worker/src", tmpl.Render(Vars{FunctionName: "worker"}))
}

func TestTemplate_Timestamp(t *testing.T) {
	tmpl, err := CompileTemplate("Deployed on ${timestamp}")
	require.NoError(t, err)
	assert.Equal(t, "Deployed on Tue, 05 Mar 2024 14:30:00 GMT", tmpl.Render(Vars{Now: fixedNow}))
}

func TestTemplate_TimestampConvertsToUTC(t *testing.T) {
	tmpl, err := CompileTemplate("${timestamp}")
	require.NoError(t, err)

	zone := time.FixedZone("UTC+2", 2*60*60)
	got := tmpl.Render(Vars{Now: fixedNow.In(zone)})
	assert.Equal(t, "Tue, 05 Mar 2024 14:30:00 GMT", got)
}

func TestTemplate_RenderTable(t *testing.T) {
	vars := Vars{FunctionName: "api", Now: fixedNow}
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"plain", "plain text", "plain text"},
		{"empty", "", ""},
		{"repeated", "${functionName}-${functionName}", "api-api"},
		{"escaped dollar", "cost $$5 for ${functionName}", "cost $5 for api"},
		{"lone dollar", "a $ b", "a $ b"},
		{"trailing dollar", "price$", "price$"},
		{"dollar before text", "$functionName", "$functionName"},
		{"both fields", "${functionName}@${timestamp}", "api@Tue, 05 Mar 2024 14:30:00 GMT"},
		{"escaped placeholder", "$${functionName}", "${functionName}"},
		{"escape at end", "a$$", "a$"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := CompileTemplate(tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tmpl.Render(vars))
			assert.Equal(t, tt.source, tmpl.String())
		})
	}
}

func TestCompileTemplate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		message string
		offset  int
	}{
		{"unknown field", "${region}", `unknown field "region"`, 0},
		{"unterminated", "dir/${functionName", "unterminated placeholder", 4},
		{"empty placeholder", "x${}", "empty placeholder", 1},
		{"case sensitive", "${FunctionName}", `unknown field "FunctionName"`, 0},
		{"after escape", "$$x${nope}", `unknown field "nope"`, 3},
		{"second tag", "${functionName}/${nope}", `unknown field "nope"`, 16},
		{"unterminated after tag", "${functionName}-${timestamp", "unterminated placeholder", 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileTemplate(tt.source)
			var tmplErr *TemplateError
			require.ErrorAs(t, err, &tmplErr)
			assert.Equal(t, tt.message, tmplErr.Message)
			assert.Equal(t, tt.offset, tmplErr.Offset)
		})
	}
}

// =============================================================================
// Templates Tests
// =============================================================================

func TestCompileTemplates_NamesFailingTemplate(t *testing.T) {
	_, err := CompileTemplates(map[TemplateName]string{
		TemplateFunctionDir: "${functionName}",
		TemplateDescription: "${nope}",
	})

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "descriptionTemplate", cfgErr.Field)
}

func TestTemplates_RenderUnknownPanics(t *testing.T) {
	templates, err := CompileTemplates(map[TemplateName]string{TemplateMetaPath: "m"})
	require.NoError(t, err)

	assert.Equal(t, "m", templates.Render(TemplateMetaPath, Vars{}))
	assert.Equal(t, "m", templates.Source(TemplateMetaPath))
	assert.Equal(t, "", templates.Source(TemplateDescription))
	assert.Panics(t, func() { templates.Render(TemplateDescription, Vars{}) })
}
