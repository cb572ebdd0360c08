package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/harvest/api"
	"github.com/agentic-research/harvest/internal/store"
)

const sampleRules = `
rule_set "Executables" {
  comment = "PE and ELF binaries"
  rule {
    extensions = ["exe", ".DLL"]
    mime_types = ["application/x-executable"]
    kind       = "file"
  }
}

rule_set "Pictures" {
  rule {
    mime_types = ["image/png"]
  }
  rule {
    names = ["DCIM"]
    kind  = "dir"
  }
}
`

type hitCall struct {
	Type    api.ArtifactType
	Subject int64
	Attrs   []api.Attribute
}

type recordingHitWriter struct {
	calls []hitCall
}

func (w *recordingHitWriter) AddHit(t api.ArtifactType, subject int64, attrs ...api.Attribute) (int64, error) {
	w.calls = append(w.calls, hitCall{Type: t, Subject: subject, Attrs: attrs})
	return int64(len(w.calls)), nil
}

func TestParseRules(t *testing.T) {
	rf, err := ParseRules("rules.hcl", []byte(sampleRules))
	require.NoError(t, err)
	require.Len(t, rf.Sets, 2)

	exe := rf.Sets[0]
	assert.Equal(t, "Executables", exe.Name)
	assert.Equal(t, "PE and ELF binaries", exe.Comment)
	require.Len(t, exe.Rules, 1)
	assert.Equal(t, []string{"exe", ".DLL"}, exe.Rules[0].Extensions)
	assert.Equal(t, KindFile, exe.Rules[0].Kind)

	pics := rf.Sets[1]
	assert.Empty(t, pics.Comment)
	assert.Len(t, pics.Rules, 2)
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o644))

	rf, err := LoadRules(path)
	require.NoError(t, err)
	assert.Len(t, rf.Sets, 2)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestParseRules_Invalid(t *testing.T) {
	cases := map[string]string{
		"syntax":       `rule_set "A" {`,
		"no rules":     `rule_set "A" {}`,
		"no criteria":  `rule_set "A" { rule { kind = "file" } }`,
		"bad kind":     "rule_set \"A\" {\n rule {\n names = [\"x\"]\n kind = \"socket\"\n }\n}",
		"bad pattern":  `rule_set "A" { rule { names = ["[x"] } }`,
		"slash":        `rule_set "a/b" { rule { names = ["x"] } }`,
		"dot dot":      `rule_set ".." { rule { names = ["x"] } }`,
		"duplicate":    `rule_set "A" { rule { names = ["x"] } } ` + "\n" + `rule_set "A" { rule { names = ["y"] } }`,
		"unknown attr": `rule_set "A" { rule { sizes = [1] } }`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules("rules.hcl", []byte(src))
			assert.Error(t, err)
		})
	}
}

func TestRule_Match(t *testing.T) {
	file := func(name, mime string) api.FileRecord {
		return api.FileRecord{ID: 9, ParentID: 1, Name: name, Type: api.MetaFile, MIME: mime}
	}
	dir := func(name string) api.FileRecord {
		return api.FileRecord{ID: 9, ParentID: 1, Name: name, Type: api.MetaDirectory}
	}

	tests := []struct {
		name string
		rule Rule
		rec  api.FileRecord
		want bool
	}{
		{"extension case-insensitive", Rule{Extensions: []string{"exe"}}, file("SETUP.EXE", ""), true},
		{"extension with dot", Rule{Extensions: []string{".dll"}}, file("k.dll", ""), true},
		{"dotfile has no extension", Rule{Extensions: []string{"bashrc"}}, file(".bashrc", ""), false},
		{"name glob", Rule{Names: []string{"*.so*"}}, file("libc.so.6", ""), true},
		{"mime", Rule{MIMETypes: []string{"image/png"}}, file("x", "image/png"), true},
		{"empty mime never matches", Rule{MIMETypes: []string{""}}, file("x", ""), false},
		{"kind file rejects dir", Rule{Names: []string{"bin"}, Kind: KindFile}, dir("bin"), false},
		{"kind dir", Rule{Names: []string{"bin"}, Kind: KindDir}, dir("bin"), true},
		{"kind any", Rule{Names: []string{"bin"}, Kind: KindAny}, dir("bin"), true},
		{"no criterion matches", Rule{Names: []string{"a"}, Extensions: []string{"b"}}, file("c.d", ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Match(tt.rec))
		})
	}
}

func TestRuleFile_ApplyMemory(t *testing.T) {
	rf, err := ParseRules("rules.hcl", []byte(sampleRules))
	require.NoError(t, err)

	s := store.NewMemoryStore()
	s.AddFile(api.FileRecord{ID: 1, ParentID: 1, Type: api.MetaDirectory}, nil)
	s.AddFile(api.FileRecord{ID: 2, ParentID: 1, Name: "DCIM", Type: api.MetaDirectory}, nil)
	s.AddFile(api.FileRecord{ID: 3, ParentID: 2, Name: "img.png", Type: api.MetaFile, MIME: "image/png"}, pngHeader)
	s.AddFile(api.FileRecord{ID: 4, ParentID: 1, Name: "tool.exe", Type: api.MetaFile}, []byte("MZ"))
	s.AddFile(api.FileRecord{ID: 5, ParentID: 1, Name: "notes.txt", Type: api.MetaFile}, []byte("n"))

	w := &recordingHitWriter{}
	n, err := rf.Apply(context.Background(), s, w)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, w.calls, 3)
	assert.Equal(t, hitCall{Type: api.ArtifactInterestingFileHit, Subject: 2,
		Attrs: []api.Attribute{{Type: api.AttrSetName, Value: "Pictures"}}}, w.calls[0])
	assert.Equal(t, int64(3), w.calls[1].Subject)
	assert.Equal(t, hitCall{Type: api.ArtifactInterestingFileHit, Subject: 4,
		Attrs: []api.Attribute{
			{Type: api.AttrSetName, Value: "Executables"},
			{Type: api.AttrComment, Value: "PE and ELF binaries"},
		}}, w.calls[2])
}

func TestRuleFile_ApplySharedDatabase(t *testing.T) {
	root := makeTree(t)
	dbPath := filepath.Join(t.TempDir(), "image.db")

	w, err := store.NewSQLiteWriter(dbPath)
	require.NoError(t, err)
	_, err = IndexDirectory(context.Background(), root, w, IndexOptions{Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rf, err := ParseRules("rules.hcl", []byte(sampleRules))
	require.NoError(t, err)

	s, err := store.OpenSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	hw, err := store.NewSQLiteWriter(dbPath)
	require.NoError(t, err)
	n, err := rf.Apply(context.Background(), s, hw)
	require.NoError(t, err)
	require.NoError(t, hw.Close())
	assert.Equal(t, 1, n)

	hits, err := s.HitsOfType(context.Background(), api.ArtifactInterestingFileHit)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(4), hits[0].SubjectID)
	assert.Equal(t, []string{"Pictures"}, hits[0].SetNames())
}
