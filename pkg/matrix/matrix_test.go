package matrix

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/minhyannv/anbud-assistant-go/pkg/localfile"
	loggerpkg "github.com/minhyannv/anbud-assistant-go/pkg/logger"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote/remotetest"
	"github.com/minhyannv/anbud-assistant-go/pkg/stream"
)

const validOutput = `{"kompetansematrise":[
	{"kategori":"systemutvikler","navn":"Kari Nordmann","beskrivelse":"Go og Kubernetes"},
	{"kategori":"arkitekt","navn":"Ola Hansen","beskrivelse":"Skyarkitektur"}
]}`

const profiles = `{"konsulenter":[{"navn":"Kari Nordmann","kompetanse":["Go"]},{"navn":"Ola Hansen"}],"selskap":"Eksempel AS"}`

func TestSchema(t *testing.T) {
	schema, err := Schema()
	require.NoError(t, err)
	doc := gjson.ParseBytes(schema)
	assert.Equal(t, "object", doc.Get("type").String())
	assert.Equal(t, "array", doc.Get("properties.kompetansematrise.type").String())
	enum := doc.Get("properties.kompetansematrise.items.properties.kategori.enum").Array()
	require.Len(t, enum, 5)
	assert.Equal(t, "systemutvikler", enum[0].String())

	_, err = NewValidator()
	require.NoError(t, err)
}

func TestParseValidOutput(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	m, err := v.Parse(validOutput)
	require.NoError(t, err)
	require.Len(t, m.Entries, 2)
	assert.Equal(t, CategoryDeveloper, m.Entries[0].Category)
	assert.Equal(t, "Ola Hansen", m.Entries[1].Name)
}

func TestParseRejectsMalformedOutput(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := map[string]string{
		"empty":            "  ",
		"not json":         `{"kompetansematrise": [`,
		"wrong category":   `{"kompetansematrise":[{"kategori":"kokk","navn":"A","beskrivelse":"B"}]}`,
		"missing name":     `{"kompetansematrise":[{"kategori":"annet","beskrivelse":"B"}]}`,
		"no rows":          `{"kompetansematrise":[]}`,
		"missing matrix":   `{"rader":[]}`,
		"array at the top": `[{"kategori":"annet","navn":"A","beskrivelse":"B"}]`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Parse(raw)
			require.ErrorIs(t, err, ErrMalformedOutput)
			var me *MalformedOutputError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, strings.TrimSpace(raw), me.Raw)
		})
	}
}

func TestBuildUserContent(t *testing.T) {
	out, err := BuildUserContent("Renhold \"161 000\" m2", []byte(profiles))
	require.NoError(t, err)
	require.True(t, gjson.Valid(out))
	assert.True(t, strings.HasPrefix(out, `{"oppsummering":`))

	doc := gjson.Parse(out)
	assert.Equal(t, `Renhold "161 000" m2`, doc.Get("oppsummering").String())
	assert.Equal(t, "Eksempel AS", doc.Get("selskap").String())
	assert.Equal(t, int64(2), doc.Get("konsulenter.#").Int())
}

func TestBuildUserContentSummaryWins(t *testing.T) {
	out, err := BuildUserContent("ny", []byte(`{"oppsummering":"gammel","a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"oppsummering":"ny","a":1}`, out)
}

func TestBuildUserContentRejectsNonObjects(t *testing.T) {
	for _, doc := range []string{`[1,2]`, `"tekst"`, `{"a":`} {
		_, err := BuildUserContent("x", []byte(doc))
		require.Error(t, err, doc)
	}
}

func TestSystemInstructions(t *testing.T) {
	system, err := SystemInstructions("Lag en matrise.\n")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(system, "Lag en matrise.\n\n"))
	assert.Contains(t, system, `"kompetansematrise"`)
}

func newGenerator(t *testing.T, fake *remotetest.Fake, fs afero.Fs) *Generator {
	t.Helper()
	g, err := NewGenerator(stream.New(fake), localfile.NewGuard(fs, nil), "Lag en kompetansematrise.")
	require.NoError(t, err)
	return g
}

func TestGenerate(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/konsulenter.json", []byte(profiles), 0o644))
	fake := remotetest.New()
	fake.Fragments = []string{validOutput[:20], validOutput[20:]}
	var audit bytes.Buffer

	g, err := NewGenerator(stream.New(fake), localfile.NewGuard(fs, nil), "Lag en kompetansematrise.",
		WithAudit(loggerpkg.NewWriterLogger(&audit)))
	require.NoError(t, err)

	var seen bytes.Buffer
	res, err := g.Generate(context.Background(), Request{ProfilesPath: "/data/konsulenter.json"}, &seen)
	require.NoError(t, err)
	assert.Equal(t, validOutput, res.Raw)
	assert.Equal(t, validOutput, seen.String())
	assert.Len(t, res.Matrix.Entries, 2)
	assert.Contains(t, audit.String(), "Kompetansematrise data:")
}

func TestGenerateUsesSummaryFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/konsulenter.json", []byte(profiles), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/oppsummering.txt", []byte("Kort oppsummering\n"), 0o644))
	fake := remotetest.New()
	fake.Fragments = []string{validOutput}

	_, err := newGenerator(t, fake, fs).Generate(context.Background(), Request{
		SummaryPath:  "/data/oppsummering.txt",
		ProfilesPath: "/data/konsulenter.json",
	}, nil)
	require.NoError(t, err)
}

func TestGenerateMissingProfiles(t *testing.T) {
	fake := remotetest.New()
	_, err := newGenerator(t, fake, afero.NewMemMapFs()).
		Generate(context.Background(), Request{ProfilesPath: "/data/konsulenter.json"}, nil)
	require.ErrorIs(t, err, localfile.ErrLocalIO)
	assert.Zero(t, fake.CountCalls("chat.completions.stream"))
}

func TestGenerateInvalidProfiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/konsulenter.json", []byte(`[1]`), 0o644))
	fake := remotetest.New()
	_, err := newGenerator(t, fake, fs).
		Generate(context.Background(), Request{ProfilesPath: "/data/konsulenter.json"}, nil)
	require.ErrorIs(t, err, localfile.ErrLocalIO)
	assert.Zero(t, fake.CountCalls("chat.completions.stream"))
}

func TestGenerateMalformedOutput(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/konsulenter.json", []byte(profiles), 0o644))
	fake := remotetest.New()
	fake.Fragments = []string{`{"tabell":`, `[]}`}

	res, err := newGenerator(t, fake, fs).
		Generate(context.Background(), Request{ProfilesPath: "/data/konsulenter.json"}, nil)
	require.ErrorIs(t, err, ErrMalformedOutput)
	assert.Equal(t, `{"tabell":[]}`, res.Raw)
}

func TestNewGeneratorRequiresInstructions(t *testing.T) {
	_, err := NewGenerator(stream.New(remotetest.New()), nil, " ")
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)
	m, err := v.Parse(validOutput)
	require.NoError(t, err)

	var b bytes.Buffer
	RenderTable(&b, m)
	out := b.String()
	assert.Contains(t, out, "KATEGORI")
	assert.Contains(t, out, "Kari Nordmann")
	assert.Contains(t, out, "arkitekt")

	assert.Contains(t, Pretty(`{"a":1}`), "\n  \"a\": 1")
	assert.Equal(t, `{"a":`, Pretty(`{"a":`))
}
