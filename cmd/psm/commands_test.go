package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagConfig(t *testing.T) {
	treatment, covariates, outcomes = "indirect", []string{"birth_year", "sex"}, []string{"ITM", "Russian:yes"}
	discard, order, ratio, outDir, trees, seed = "treated", "data", 2, t.TempDir(), 10, 3

	cfg, e := flagConfig("/data/survey.csv")
	require.Nil(t, e)
	ds := cfg.Datasets[0]
	assert.Equal(t, "survey", ds.Name)
	assert.Equal(t, "ITM", ds.Outcomes[0].Name)
	assert.Equal(t, "", ds.Outcomes[0].Kind)
	assert.Equal(t, "binary", ds.Outcomes[1].Kind)
	assert.Equal(t, "yes", ds.Outcomes[1].Positive)
	assert.Equal(t, 2, cfg.Match.Ratio)
	assert.Equal(t, int64(3), cfg.Seed)

	discard = "sometimes"
	_, e = flagConfig("/data/survey.csv")
	assert.NotNil(t, e)
	discard = "both"
}

func TestDemo(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"demo", "--rows", "300", "--trees", "30", "--out", dir})
	require.Nil(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "Balance for matched data:")
	_, e := os.Stat(filepath.Join(dir, "survey.csv"))
	assert.Nil(t, e)

	out.Reset()
	rootCmd.SetArgs([]string{"version"})
	require.Nil(t, rootCmd.Execute())
	assert.Contains(t, out.String(), version)
}
