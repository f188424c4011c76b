package machine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sporespawn/config"
	"sporespawn/playback"
	"sporespawn/queue"
	"sporespawn/resolver"
	"sporespawn/source"

	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
)

const (
	guildID      = snowflake.ID(1)
	voiceChannel = snowflake.ID(10)
	textChannel  = snowflake.ID(20)
)

type fakeConn struct {
	mu       sync.Mutex
	provider voice.OpusFrameProvider
	speaking voice.SpeakingFlags
	closed   bool
}

func (c *fakeConn) SetOpusFrameProvider(provider voice.OpusFrameProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = provider
}

func (c *fakeConn) SetSpeaking(_ context.Context, flags voice.SpeakingFlags) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = flags
	return nil
}

func (c *fakeConn) Close(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) state() (voice.OpusFrameProvider, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider, c.closed
}

type fakeConnector struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (f *fakeConnector) Connect(context.Context, snowflake.ID, snowflake.ID) (VoiceConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeConnector) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, locator, requester string) (queue.Song, error) {
	if strings.HasPrefix(locator, "missing") {
		return queue.Song{}, resolver.ErrNotFound
	}
	return queue.Song{Locator: locator, Title: strings.ToUpper(locator), Requester: requester, Duration: "3:00"}, nil
}

type fakeProvider struct{}

func (fakeProvider) ProvideOpusFrame() ([]byte, error) { return nil, nil }
func (fakeProvider) Close()                            {}

type endlessDecoder struct{}

func (endlessDecoder) ReadSamples(buf []int16) (int, error) { return len(buf), nil }
func (endlessDecoder) Close() error                         { return nil }

type testEnv struct {
	sm        *SessionManager
	connector *fakeConnector
	announced chan queue.Song

	mu      sync.Mutex
	sources []playback.FrameSource
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		connector: &fakeConnector{},
		announced: make(chan queue.Song, 8),
	}
	env.sm = NewSessionManager(&config.Config{}, env.connector, fakeResolver{}, func(_ *Session, song queue.Song) {
		env.announced <- song
	})
	env.sm.startDecoder = func(context.Context) source.StartFunc {
		return func(string) (source.Decoder, error) { return endlessDecoder{}, nil }
	}
	env.sm.newOpusProvider = func(src playback.FrameSource) (voice.OpusFrameProvider, error) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.sources = append(env.sources, src)
		return fakeProvider{}, nil
	}
	t.Cleanup(func() { env.sm.CloseAll(context.Background()) })
	return env
}

// tick polls the most recently attached source the way a voice connection would.
func (env *testEnv) tick(n int) {
	env.mu.Lock()
	src := env.sources[len(env.sources)-1]
	env.mu.Unlock()

	buf := make([]int16, playback.SamplesPerFrame*2)
	for range n {
		src.ProduceFrame(buf)
	}
}

func (env *testEnv) join(t *testing.T) *Session {
	t.Helper()
	if got := env.sm.JoinCommand(context.Background(), guildID, voiceChannel, textChannel); got != joinedMessage(voiceChannel) {
		t.Fatalf("JoinCommand = %q", got)
	}
	s := env.sm.Get(guildID)
	if s == nil {
		t.Fatal("no session after join")
	}
	return s
}

func TestCommandsWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	replies := map[string]string{
		"play":  env.sm.PlayCommand(ctx, guildID, "song", "alice"),
		"skip":  env.sm.SkipCommand(guildID),
		"undo":  env.sm.UndoCommand(guildID),
		"list":  env.sm.ListCommand(guildID),
		"now":   env.sm.NowCommand(guildID),
		"stop":  env.sm.StopCommand(ctx, guildID),
		"leave": env.sm.LeaveCommand(ctx, guildID),
	}
	for cmd, got := range replies {
		if got != msgNotJoined {
			t.Errorf("%s reply = %q, want %q", cmd, got, msgNotJoined)
		}
	}
}

func TestJoinAttachesSource(t *testing.T) {
	env := newTestEnv(t)
	s := env.join(t)

	provider, closed := env.connector.last().state()
	if provider == nil || closed {
		t.Fatalf("conn provider = %v closed = %v, want provider set and open", provider, closed)
	}
	if !s.Playing() {
		t.Error("session not playing after join")
	}
	if s.TextChannelID != textChannel || s.VoiceChannelID != voiceChannel {
		t.Errorf("session channels = %v/%v", s.VoiceChannelID, s.TextChannelID)
	}
}

func TestJoinFailure(t *testing.T) {
	env := newTestEnv(t)
	env.connector.err = errors.New("voice handshake timed out")

	if got := env.sm.JoinCommand(context.Background(), guildID, voiceChannel, textChannel); got != msgJoinFailed {
		t.Fatalf("JoinCommand = %q, want %q", got, msgJoinFailed)
	}
	if env.sm.Get(guildID) != nil {
		t.Fatal("session registered after failed join")
	}
}

func TestPlayAnnouncesWhenStreaming(t *testing.T) {
	env := newTestEnv(t)
	s := env.join(t)

	got := env.sm.PlayCommand(context.Background(), guildID, "first", "alice")
	if got != "Enqueued: *FIRST* [3:00]" {
		t.Fatalf("PlayCommand = %q", got)
	}
	if s.Queue.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", s.Queue.Len())
	}

	env.tick(3)

	select {
	case song := <-env.announced:
		if song.Title != "FIRST" || song.Requester != "alice" {
			t.Errorf("announced %+v", song)
		}
	case <-time.After(time.Second):
		t.Fatal("no announcement")
	}
	if got := env.sm.NowCommand(guildID); got != "Now Playing: *FIRST* [3:00] requested by **alice**" {
		t.Errorf("NowCommand = %q", got)
	}
}

func TestPlayNotFound(t *testing.T) {
	env := newTestEnv(t)
	s := env.join(t)

	if got := env.sm.PlayCommand(context.Background(), guildID, "missing song", "alice"); got != msgNotFound {
		t.Fatalf("PlayCommand = %q, want %q", got, msgNotFound)
	}
	if s.Queue.Len() != 0 {
		t.Fatalf("queue length = %d, want 0", s.Queue.Len())
	}
}

func TestSkipCommand(t *testing.T) {
	env := newTestEnv(t)
	s := env.join(t)
	ctx := context.Background()

	if got := env.sm.SkipCommand(guildID); got != msgNothingPlaying {
		t.Fatalf("skip on empty queue = %q", got)
	}
	if s.Skip.Pending() {
		t.Fatal("skip requested on empty queue")
	}

	env.sm.PlayCommand(ctx, guildID, "first", "alice")
	env.sm.PlayCommand(ctx, guildID, "second", "bob")
	env.tick(3)

	if got := env.sm.SkipCommand(guildID); got != msgSkipped {
		t.Fatalf("SkipCommand = %q", got)
	}
	env.tick(1)
	if front, _ := s.Queue.Front(); front.Title != "SECOND" {
		t.Fatalf("front after skip = %+v, want SECOND", front)
	}
}

func TestSkipWhileStopped(t *testing.T) {
	env := newTestEnv(t)
	s := env.join(t)
	ctx := context.Background()

	env.sm.PlayCommand(ctx, guildID, "first", "alice")
	env.sm.PlayCommand(ctx, guildID, "second", "bob")
	env.sm.StopCommand(ctx, guildID)

	if got := env.sm.SkipCommand(guildID); got != msgSkipped {
		t.Fatalf("SkipCommand = %q", got)
	}
	if s.Skip.Pending() {
		t.Error("skip left pending on a stopped session")
	}
	if front, _ := s.Queue.Front(); front.Title != "SECOND" {
		t.Fatalf("front after skip = %+v, want SECOND", front)
	}
}

func TestUndoCommand(t *testing.T) {
	env := newTestEnv(t)
	env.join(t)
	ctx := context.Background()

	if got := env.sm.UndoCommand(guildID); got != msgQueueEmpty {
		t.Fatalf("undo on empty queue = %q", got)
	}
	env.sm.PlayCommand(ctx, guildID, "first", "alice")
	if got := env.sm.UndoCommand(guildID); got != msgQueueEmpty {
		t.Fatalf("undo of the only song = %q", got)
	}
	env.sm.PlayCommand(ctx, guildID, "second", "bob")
	if got := env.sm.UndoCommand(guildID); got != "Removed *SECOND* from the queue" {
		t.Fatalf("UndoCommand = %q", got)
	}
}

func TestListCommand(t *testing.T) {
	env := newTestEnv(t)
	env.join(t)
	ctx := context.Background()

	env.sm.PlayCommand(ctx, guildID, "first", "alice")
	if got := env.sm.ListCommand(guildID); got != msgQueueEmpty {
		t.Fatalf("list with only the playing song = %q", got)
	}
	env.sm.PlayCommand(ctx, guildID, "second", "bob")
	env.sm.PlayCommand(ctx, guildID, "third", "carol")

	want := "**Song queue:**\n1. *SECOND* [3:00] requested by **bob**\n2. *THIRD* [3:00] requested by **carol**\n"
	if got := env.sm.ListCommand(guildID); got != want {
		t.Fatalf("ListCommand = %q, want %q", got, want)
	}
}

func TestStopKeepsQueueAndPlayResumes(t *testing.T) {
	env := newTestEnv(t)
	s := env.join(t)
	ctx := context.Background()

	env.sm.PlayCommand(ctx, guildID, "first", "alice")
	env.tick(3)
	<-env.announced

	if got := env.sm.StopCommand(ctx, guildID); got != msgStopped {
		t.Fatalf("StopCommand = %q", got)
	}
	if provider, _ := env.connector.last().state(); provider != nil {
		t.Error("provider still attached after stop")
	}
	if s.Playing() || s.Queue.Len() != 1 {
		t.Fatalf("after stop: playing = %v, queue = %d", s.Playing(), s.Queue.Len())
	}

	env.sm.PlayCommand(ctx, guildID, "second", "bob")
	if !s.Playing() {
		t.Fatal("play did not resume a stopped session")
	}
	env.tick(3)
	select {
	case song := <-env.announced:
		if song.Title != "FIRST" {
			t.Errorf("resumed with %+v, want FIRST again", song)
		}
	case <-time.After(time.Second):
		t.Fatal("no announcement after resume")
	}
}

func TestJoinReplacesSession(t *testing.T) {
	env := newTestEnv(t)
	first := env.join(t)
	firstConn := env.connector.last()
	env.sm.PlayCommand(context.Background(), guildID, "first", "alice")

	second := env.join(t)
	if second == first {
		t.Fatal("join reused the old session")
	}
	if _, closed := firstConn.state(); !closed {
		t.Error("old voice connection left open")
	}
	if second.Queue.Len() != 0 {
		t.Errorf("new session queue length = %d, want 0", second.Queue.Len())
	}
}

func TestLeaveCommand(t *testing.T) {
	env := newTestEnv(t)
	env.join(t)
	conn := env.connector.last()

	if got := env.sm.LeaveCommand(context.Background(), guildID); got != msgLeft {
		t.Fatalf("LeaveCommand = %q", got)
	}
	provider, closed := conn.state()
	if provider != nil || !closed {
		t.Errorf("after leave: provider = %v closed = %v", provider, closed)
	}
	if env.sm.Get(guildID) != nil {
		t.Error("session still registered after leave")
	}
}

func TestReapIdle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.join(t)

	busyGuild := snowflake.ID(2)
	if _, err := env.sm.Join(ctx, busyGuild, voiceChannel, textChannel); err != nil {
		t.Fatalf("Join: %v", err)
	}
	env.sm.PlayCommand(ctx, busyGuild, "first", "alice")

	now := time.Now()
	if left := env.sm.ReapIdle(ctx, now, time.Minute); len(left) != 0 {
		t.Fatalf("first sweep left %v, want none", left)
	}
	if left := env.sm.ReapIdle(ctx, now.Add(30*time.Second), time.Minute); len(left) != 0 {
		t.Fatalf("early sweep left %v, want none", left)
	}
	left := env.sm.ReapIdle(ctx, now.Add(time.Minute), time.Minute)
	if len(left) != 1 || left[0] != guildID {
		t.Fatalf("sweep left %v, want [%v]", left, guildID)
	}
	if env.sm.Get(busyGuild) == nil {
		t.Error("busy session was reaped")
	}
}

func TestCloseAll(t *testing.T) {
	env := newTestEnv(t)
	env.join(t)
	conn := env.connector.last()

	env.sm.CloseAll(context.Background())

	if _, closed := conn.state(); !closed {
		t.Error("voice connection left open")
	}
	if env.sm.Get(guildID) != nil {
		t.Error("session still registered")
	}
}

// gatedResolver blocks every lookup until release is closed.
type gatedResolver struct {
	entered chan struct{}
	release chan struct{}
}

func (r *gatedResolver) Resolve(ctx context.Context, locator, requester string) (queue.Song, error) {
	r.entered <- struct{}{}
	<-r.release
	return fakeResolver{}.Resolve(ctx, locator, requester)
}

func TestStopDropsPendingSkip(t *testing.T) {
	env := newTestEnv(t)
	s := env.join(t)
	ctx := context.Background()

	env.sm.PlayCommand(ctx, guildID, "first", "alice")
	env.sm.PlayCommand(ctx, guildID, "second", "bob")
	env.tick(3)

	env.sm.SkipCommand(guildID)
	env.sm.StopCommand(ctx, guildID)
	if s.Skip.Pending() {
		t.Fatal("skip still pending after stop")
	}

	env.sm.PlayCommand(ctx, guildID, "third", "carol")
	env.tick(5)
	if front, _ := s.Queue.Front(); front.Title != "FIRST" {
		t.Fatalf("front after resume = %+v, want FIRST", front)
	}
}

func TestPlayAfterLeaveDuringResolve(t *testing.T) {
	env := newTestEnv(t)
	s := env.join(t)
	conn := env.connector.last()
	gate := &gatedResolver{entered: make(chan struct{}), release: make(chan struct{})}
	env.sm.resolver = gate

	reply := make(chan string, 1)
	go func() { reply <- env.sm.PlayCommand(context.Background(), guildID, "first", "alice") }()
	<-gate.entered

	if got := env.sm.LeaveCommand(context.Background(), guildID); got != msgLeft {
		t.Fatalf("LeaveCommand = %q", got)
	}
	close(gate.release)

	if got := <-reply; got != msgNotJoined {
		t.Fatalf("PlayCommand = %q, want %q", got, msgNotJoined)
	}
	if s.Queue.Len() != 0 || s.Playing() {
		t.Fatalf("left session got a song: queue %d, playing %v", s.Queue.Len(), s.Playing())
	}
	if provider, _ := conn.state(); provider != nil {
		t.Fatal("provider attached to a closed connection")
	}
}

func TestConcurrentJoinsKeepOneConnection(t *testing.T) {
	env := newTestEnv(t)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.sm.Join(context.Background(), guildID, voiceChannel, textChannel); err != nil {
				t.Errorf("Join: %v", err)
			}
		}()
	}
	wg.Wait()

	env.connector.mu.Lock()
	conns := append([]*fakeConn(nil), env.connector.conns...)
	env.connector.mu.Unlock()

	open := 0
	for _, c := range conns {
		if _, closed := c.state(); !closed {
			open++
		}
	}
	if len(conns) != 2 || open != 1 {
		t.Fatalf("%d connections with %d open, want 2 with 1 open", len(conns), open)
	}
	if s := env.sm.Get(guildID); s == nil || s.conn != env.connector.last() {
		t.Fatal("registered session does not own the open connection")
	}
}
