package irc

import "testing"

func mustParse(t *testing.T, line string) *Message {
	t.Helper()
	msg, err := Parse([]byte(line))
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	return msg
}

func TestServerInfo_Welcome(t *testing.T) {
	info := NewServerInfo()
	info.Update(mustParse(t, ":irc.example.org 001 me :Welcome"))

	if exp, got := "irc.example.org", info.Name(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
	if !info.IsServer("IRC.Example.Org") {
		t.Error("expected a case-insensitive server match")
	}
	if info.IsServer("somenick") {
		t.Error("expected a nick to not match the server")
	}
}

func TestServerInfo_ISupport(t *testing.T) {
	info := NewServerInfo()
	info.Update(mustParse(t,
		":s 005 me CHANTYPES=#& NICKLEN=30 USERLEN=10 HOSTLEN=64 EXCEPTS :are supported by this server"))

	if !info.IsChannel("#x") || !info.IsChannel("&x") {
		t.Error("expected # and & to be channels")
	}
	if info.IsChannel("+x") {
		t.Error("expected + to not be a channel after CHANTYPES=#&")
	}
	if _, ok := info.Extra("EXCEPTS"); !ok {
		t.Error("expected EXCEPTS to be recorded")
	}
}

func TestServerInfo_PrefixBudget(t *testing.T) {
	info := NewServerInfo()
	if exp, got := 100, info.PrefixBudget(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}

	info.Update(mustParse(t, ":irc.example.org 001 me :Welcome"))
	info.Update(mustParse(t, ":s 005 me NICKLEN=30 USERLEN=10 HOSTLEN=64 :are supported"))
	if exp, got := 1 + 30 + 1 + 10 + 1 + 64 + 1, info.PrefixBudget(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}

	info.SetSelfMask("me!user@host.example.org")
	if exp, got := 1 + len("me!user@host.example.org") + 1, info.PrefixBudget(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
}

func TestServerInfo_SetSelfMaskRequiresFullMask(t *testing.T) {
	info := NewServerInfo()
	info.SetSelfMask("justanick")
	if exp, got := 100, info.PrefixBudget(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
}

func TestServerInfo_MyInfoName(t *testing.T) {
	info := NewServerInfo()
	info.Update(mustParse(t, ":x 004 me irc.example.org ircd-seven-1.1 abc def"))
	if exp, got := "irc.example.org", info.Name(); exp != got {
		t.Errorf("Expected: %v, got: %v", exp, got)
	}
}
