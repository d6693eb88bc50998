// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"abc", "ab", 1},
		{"ab", "abc", 1},
		{"abc", "bac", 2},
		{"kitten", "sitting", 3},
		{"mount", "muont", 2},
		{"mkfile", "mkfil", 1},
	}

	for _, test := range tests {
		t.Run(test.a+"->"+test.b, func(t *testing.T) {
			if got := levenshtein(test.a, test.b); got != test.want {
				t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
			}
		})
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "mount"},
		{Name: "mkfile"},
		{Name: "fsck"},
		{Name: "add_torrent_file"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"muont", "mount"},
		{"mkfil", "mkfile"},
		{"fsk", "fsck"},
		{"add_torent_file", "add_torrent_file"},
		{"zzzzzzzzz", ""},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			if got := suggestCommand(test.input, commands); got != test.want {
				t.Errorf("suggestCommand(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}

func TestSuggestFlag(t *testing.T) {
	newFlagSet := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flagSet.String("torrent_dir", "", "")
		flagSet.String("torrent_callback", "", "")
		flagSet.Bool("allow_root", false, "")
		flagSet.StringP("user", "u", "", "")
		return flagSet
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"typo", []string{"--torent_dir", "/x"}, "--torrent_dir"},
		{"with value", []string{"--alow_root=true"}, "--allow_root"},
		{"known flags skipped", []string{"--user", "bob", "--torrent_calback", "x"}, "--torrent_callback"},
		{"shorthand known", []string{"-u", "bob", "--zzzzzzzz"}, ""},
		{"after terminator", []string{"--", "--torent_dir"}, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := suggestFlag(test.args, newFlagSet()); got != test.want {
				t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
			}
		})
	}
}
