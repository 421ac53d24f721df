package client_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veil/internal/client"
	"veil/internal/domain"
	"veil/internal/relay"
	"veil/internal/store"
	"veil/internal/trust"
)

const waitTimeout = 10 * time.Second

func startRelay(t *testing.T) (string, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	srv := relay.NewServer(relay.Config{Addr: "127.0.0.1:0"}, mem, store.HashPassword, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := srv.Run(ctx); err != nil {
			t.Errorf("relay exited: %v", err)
		}
	}()

	deadline := time.Now().Add(waitTimeout)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("relay did not start listening")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return srv.Addr().(*net.TCPAddr).String(), mem
}

type user struct {
	engine   *client.Engine
	messages chan string
	keys     chan domain.TrustedKeyRecord
}

func newUser(t *testing.T, addr, username string) *user {
	t.Helper()
	u := &user{
		messages: make(chan string, 8),
		keys:     make(chan domain.TrustedKeyRecord, 8),
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	engine, err := client.New(domain.TierStandard, trust.NewMemoryStore(), client.Handlers{
		OnMessage: func(from, text, _ string) {
			u.messages <- from + ": " + text
		},
		OnKeyExchange: func(from string, rec domain.TrustedKeyRecord) {
			u.keys <- rec
		},
	}, log)
	require.NoError(t, err)
	u.engine = engine

	_, err = engine.Keys().GenerateIdentity()
	require.NoError(t, err)

	require.NoError(t, engine.Connect(addr, nil))
	t.Cleanup(func() { engine.Close() })

	require.NoError(t, engine.Register(username, "", "longenoughpassword"))
	return u
}

func recv[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestCryptoFacade_Offline(t *testing.T) {
	newEngine := func() *client.Engine {
		e, err := client.New(domain.TierStandard, trust.NewMemoryStore(), client.Handlers{}, nil)
		require.NoError(t, err)
		_, err = e.Keys().GenerateIdentity()
		require.NoError(t, err)
		return e
	}
	alice, bob := newEngine(), newEngine()

	aliceID, err := alice.Keys().Identity()
	require.NoError(t, err)
	bobID, err := bob.Keys().Identity()
	require.NoError(t, err)

	env, err := alice.EncryptMessage("no relay involved", bobID.Public())
	require.NoError(t, err)
	got, err := bob.DecryptMessage(env, "alice", aliceID.Public())
	require.NoError(t, err)
	assert.Equal(t, "no relay involved", got)

	sig, err := alice.Sign([]byte("attest this"))
	require.NoError(t, err)
	assert.True(t, bob.Verify([]byte("attest this"), sig, aliceID.Public()))
	assert.False(t, bob.Verify([]byte("something else"), sig, aliceID.Public()))
}

func TestEndToEnd_KeyExchangeAndMessage(t *testing.T) {
	addr, mem := startRelay(t)

	alice := newUser(t, addr, "alice")
	bob := newUser(t, addr, "bob")

	// Exchange keys both ways through the relay.
	require.NoError(t, alice.engine.RequestKeyExchange("bob"))
	rec := recv(t, bob.keys, "alice's key at bob")
	assert.Equal(t, "alice", rec.Username)
	assert.False(t, rec.Verified)

	require.NoError(t, bob.engine.RequestKeyExchange("alice"))
	recv(t, alice.keys, "bob's key at alice")

	// Alice -> Bob, end to end encrypted.
	msgID, err := alice.engine.SendMessage("bob", "hello over the wire")
	require.NoError(t, err)
	assert.NotEmpty(t, msgID)
	assert.Equal(t, "alice: hello over the wire", recv(t, bob.messages, "message at bob"))

	// Bob replies.
	_, err = bob.engine.SendMessage("alice", "loud and clear")
	require.NoError(t, err)
	assert.Equal(t, "bob: loud and clear", recv(t, alice.messages, "reply at alice"))

	// The relay saw metadata only: routing facts and a ciphertext hash.
	msgs := mem.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "alice", msgs[0].Sender)
	assert.Equal(t, "bob", msgs[0].Receiver)
	assert.NotEmpty(t, msgs[0].ContentHash)
}

func TestEndToEnd_OfflinePeerRejected(t *testing.T) {
	addr, _ := startRelay(t)
	alice := newUser(t, addr, "alice")

	err := alice.engine.RequestKeyExchange("nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
}

func TestEndToEnd_SendWithoutTrustedKey(t *testing.T) {
	addr, _ := startRelay(t)
	alice := newUser(t, addr, "alice")

	_, err := alice.engine.SendMessage("stranger", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no trusted key")
}

func TestEndToEnd_LogoutRevokesSession(t *testing.T) {
	addr, _ := startRelay(t)
	alice := newUser(t, addr, "alice")

	token := alice.engine.SessionToken()
	require.NotEmpty(t, token)
	require.NoError(t, alice.engine.Logout())
	assert.Empty(t, alice.engine.SessionToken())
}

func TestEndToEnd_TokenResumption(t *testing.T) {
	addr, _ := startRelay(t)
	alice := newUser(t, addr, "alice")
	token := alice.engine.SessionToken()
	require.NotEmpty(t, token)

	// Drop the connection without logging out; the token stays valid.
	require.NoError(t, alice.engine.Close())

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	resumed, err := client.New(domain.TierStandard, trust.NewMemoryStore(), client.Handlers{}, log)
	require.NoError(t, err)
	_, err = resumed.Keys().GenerateIdentity()
	require.NoError(t, err)

	require.NoError(t, resumed.Connect(addr, nil))
	defer resumed.Close()

	resumed.ResumeToken(token)
	require.NoError(t, resumed.Login("alice", ""))
	assert.Equal(t, token, resumed.SessionToken())
}
