package sheet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sheetThree = "# Sheet-Three\n" +
	"\n" +
	"```meta\n" +
	"answer_suggested_length: 10\n" +
	"max_tokens: 20\n" +
	"```\n" +
	"\n" +
	"In the following, answer the multiple choice question or complete the saying and nothing else.\n" +
	"\n" +
	"## Q-1\n" +
	"\n" +
	"```meta\n" +
	"answer_suggested_length: 15\n" +
	"```\n" +
	"\n" +
	"Q: What did the early bird get?\n" +
	"A) The bill\n" +
	"B) The beer\n" +
	"C) The worm\n" +
	"\n" +
	"### answer\n" +
	"C) The worm\n" +
	"\n" +
	"## Q-2\n" +
	"\n" +
	"### question\n" +
	"Complete the saying: A stitch in time...\n" +
	"A: \n" +
	"\n" +
	"\n" +
	"### answer\n" +
	"saves nine\n" +
	"\n" +
	"### notes\n" +
	"classic proverb\n"

func TestParseSheetStructure(t *testing.T) {
	s, err := Parse([]byte(sheetThree))
	require.NoError(t, err)

	assert.Equal(t, "Sheet-Three", s.Name)
	require.Len(t, s.Questions, 2)
	assert.Equal(t, "Q-1", s.Questions[0].Name)
	assert.Equal(t, "Q-2", s.Questions[1].Name)

	sys := "In the following, answer the multiple choice question or complete the saying and nothing else.\n"
	require.NotNil(t, s.Text)
	assert.Equal(t, sys, *s.Text)
	assert.Equal(t, sys, *s.Questions[0].TextSys)
	assert.Equal(t, sys, *s.Questions[1].TextSys)

	assert.Equal(t, "Q: What did the early bird get?\nA) The bill\nB) The beer\nC) The worm", s.Questions[0].TextUsr)
	require.NotNil(t, s.Questions[0].Answer)
	assert.Equal(t, "C) The worm", *s.Questions[0].Answer)

	assert.Equal(t, "Complete the saying: A stitch in time...\nA: ", s.Questions[1].TextUsr)
	assert.Equal(t, "saves nine", *s.Questions[1].Answer)
	assert.Equal(t, "classic proverb", s.Questions[1].Sections["notes"])
	assert.Empty(t, s.Warnings)
}

func TestParseMetaCascade(t *testing.T) {
	s, err := Parse([]byte(sheetThree))
	require.NoError(t, err)

	assert.Equal(t, "10", s.Meta["answer_suggested_length"])
	assert.Equal(t, "15", s.Questions[0].Meta["answer_suggested_length"])
	assert.Equal(t, "10", s.Questions[1].Meta["answer_suggested_length"])
	assert.Equal(t, "20", s.Questions[0].Meta["max_tokens"])
}

func TestParseWarnings(t *testing.T) {
	src := "# Sheet-Four\n\n" +
		"## Q-1\n\nQ: one?\n\n" +
		"## Q-2\n\n### answer\nnothing asked\n\n" +
		"## Q-2\n\nQ: two?\n\n" +
		"## Q-2\n\nQ: three?\n"

	s, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, s.Questions, 4)

	assert.Equal(t, "Q-2", s.Questions[1].Name)
	assert.Equal(t, "", s.Questions[1].TextUsr)
	require.NotEmpty(t, s.Questions[1].Warnings)
	assert.Equal(t, "text_usr is None", s.Questions[1].Warnings[0])

	assert.Equal(t, "Q-2_1", s.Questions[2].Name)
	assert.Equal(t, "question name `Q-2` is not unique", s.Questions[2].Warnings[0])
	assert.Equal(t, "Q-2_2", s.Questions[3].Name)
	assert.Nil(t, s.Text)
	assert.Nil(t, s.Questions[0].TextSys)
}

func TestParseBadMetaWarns(t *testing.T) {
	src := "# S\n\n```meta\n: : bad\n  - [\n```\n\nsystem\n\n## Q\n\nQ?\n"
	s, err := Parse([]byte(src))
	require.NoError(t, err)
	require.NotEmpty(t, s.Warnings)
	assert.Contains(t, s.Warnings[0], "meta block")
	assert.Equal(t, "system\n", *s.Text)
}

func TestParseKeepsOtherFencesInText(t *testing.T) {
	src := "# S\n\n## Q\n\nWhat does this print?\n\n```go\nfmt.Println(1)\n```\n"
	s, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "What does this print?\n\n```go\nfmt.Println(1)\n```", s.Questions[0].TextUsr)
}

func TestParseFileAndCollect(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"input-one.md", "input-two.md", "output-one.json", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("## Q\n\nQ?\n"), 0o644))
	}

	files, err := Collect(dir, "input", ".md")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "input-one.md"), filepath.Join(dir, "input-two.md")}, files)

	s, err := ParseFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "input-one", s.Name)
	assert.Equal(t, "input-one.md", s.FileName)
	require.Len(t, s.Questions, 1)
}
