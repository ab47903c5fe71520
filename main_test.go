package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validateNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestValidateDefinitionsAcceptsArray(t *testing.T) {
	data := []byte(`[
		{"name":"Action","ownerUserId":"u1","expressionSets":[{"expressions":[{"memberName":"Genres","operator":"Contains","targetValue":"action"}]}]},
		{"name":"Recent","ownerUserId":"u1","expressionSets":[{"expressions":[{"memberName":"DateCreated","operator":"NewerThan","targetValue":"2:weeks"}]}]}
	]`)
	var out bytes.Buffer
	require.NoError(t, validateDefinitions(&out, data, validateNow))
	assert.Contains(t, out.String(), "ok      Action")
	assert.Contains(t, out.String(), "ok      Recent")
}

func TestValidateDefinitionsListsRuleErrors(t *testing.T) {
	data := []byte(`{"name":"Broken","ownerUserId":"u1","expressionSets":[
		{"expressions":[{"memberName":"CommunityRating","operator":"Contains","targetValue":"7"}]}
	]}`)
	var out bytes.Buffer
	err := validateDefinitions(&out, data, validateNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1")
	assert.Contains(t, out.String(), "invalid Broken")
	assert.Contains(t, out.String(), `CommunityRating Contains "7"`)
}

func TestValidateCommandReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ownerUserId":"u1"}`), 0o644))

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"validate", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, out.String(), "invalid #1")
	assert.Contains(t, out.String(), "name is required")
}

func TestConfigPathPrecedence(t *testing.T) {
	t.Setenv(configEnv, "/etc/smartlists.json")
	flag := ""
	c := newCommandContext(&flag)
	assert.Equal(t, "/etc/smartlists.json", c.configPath())

	flag = "./mine.json"
	assert.Equal(t, "./mine.json", c.configPath())
}
