package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStatements(t *testing.T) {
	script := `-- header comment
CREATE DATABASE IF NOT EXISTS moodboard;

CREATE TABLE t
(
    a String -- inline note
)
ENGINE = Memory;
-- trailing comment
`
	stmts := splitStatements(script)
	assert.Equal(t, []string{
		"CREATE DATABASE IF NOT EXISTS moodboard",
		"CREATE TABLE t\n(\n    a String -- inline note\n)\nENGINE = Memory",
	}, stmts)
}
