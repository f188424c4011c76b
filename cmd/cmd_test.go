package cmd

import (
	"context"
	"log/slog"
	"testing"

	"sporespawn/config"
)

func TestMasking(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{name: "short token", fn: maskToken, in: "abc", want: "***"},
		{name: "long token", fn: maskToken, in: "MTIzNDU2Nzg5.secret", want: "MTIzNDU2***"},
		{name: "empty url", fn: maskURL, in: "", want: "***"},
		{name: "long url", fn: maskURL, in: "https://discord.com/api/webhooks/1/abc", want: "https://discord.com/***"},
		{name: "global commands", fn: orGlobal, in: "", want: "(global commands)"},
		{name: "guild commands", fn: orGlobal, in: "42", want: "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocalSongsWithoutResolving(t *testing.T) {
	args := []string{"https://example.com/a.mp3", "some search words"}
	songs := localSongs(context.Background(), &config.Config{}, args, false, slog.Default())

	if len(songs) != len(args) {
		t.Fatalf("got %d songs, want %d", len(songs), len(args))
	}
	for i, song := range songs {
		if song.Locator != args[i] || song.Title != args[i] {
			t.Errorf("song %d = %+v, want locator and title %q", i, song, args[i])
		}
		if song.Duration != "?" {
			t.Errorf("song %d duration = %q, want ?", i, song.Duration)
		}
		if song.Requester == "" {
			t.Errorf("song %d has no requester", i)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"config": false, "version": false, "local": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestLocalGainFlag(t *testing.T) {
	flag := localCmd.Flags().Lookup("gain")
	if flag == nil {
		t.Fatal("local command has no gain flag")
	}
	if flag.DefValue != "0" {
		t.Errorf("gain default = %q, want 0", flag.DefValue)
	}
}
