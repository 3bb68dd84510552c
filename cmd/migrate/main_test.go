package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls   []string
	steps   int
	forced  int
	upErr   error
	version uint
}

func (f *fakeMigrator) Up() error   { f.calls = append(f.calls, "up"); return f.upErr }
func (f *fakeMigrator) Down() error { f.calls = append(f.calls, "down"); return nil }
func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return nil
}
func (f *fakeMigrator) Force(version int) error {
	f.calls = append(f.calls, "force")
	f.forced = version
	return nil
}
func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, false, nil
}

func TestRunDefaultsToUpAndIgnoresNoChange(t *testing.T) {
	f := &fakeMigrator{upErr: migrate.ErrNoChange}
	require.NoError(t, run(f, nil))
	assert.Equal(t, []string{"up"}, f.calls)
}

func TestRunUpPropagatesFailure(t *testing.T) {
	f := &fakeMigrator{upErr: errors.New("dirty database")}
	err := run(f, []string{"up"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dirty database")
}

func TestRunDownWithSteps(t *testing.T) {
	f := &fakeMigrator{}
	require.NoError(t, run(f, []string{"down", "2"}))
	assert.Equal(t, -2, f.steps)

	require.Error(t, run(f, []string{"down", "zero"}))
}

func TestRunForceRequiresVersion(t *testing.T) {
	f := &fakeMigrator{}
	require.Error(t, run(f, []string{"force"}))
	require.NoError(t, run(f, []string{"force", "2"}))
	assert.Equal(t, 2, f.forced)
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	require.Error(t, run(&fakeMigrator{}, []string{"sideways"}))
}
