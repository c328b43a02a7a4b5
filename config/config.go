/*
Package config loads server definitions for tern sessions from a toml
file. Top-level values provide fallback defaults for every network;
each network overrides what it needs.

An example configuration:

	hostname = "tern"
	realname = "tern user"
	nicks = ["tern", "tern_"]

	[networks.libera]
		host = "irc.libera.chat"
		port = 6697
		tls = true
		channels = ["#tern"]
		sasl_user = "tern"
		sasl_pass = "hunter2"

	[networks.local]
		host = "127.0.0.1"
		port = 6667
		nicks = ["terndev"]
		autoconnect = true
*/
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/ternet/tern/session"
)

// defaultPort is used when neither the network nor the defaults name
// one: the historical plaintext IRC port.
const defaultPort = uint16(6667)

// Format strings for validation errors.
const (
	fmtErrMissing = "config(%v): requires %v, but nothing was given"
	fmtErrInvalid = "config(%v): invalid %v, given: %v"
)

// errList collects every validation problem in one pass so the user
// fixes the file once, not field by field.
type errList []error

func (e errList) Error() string {
	if len(e) == 0 {
		return "config: no errors"
	}
	s := e[0].Error()
	for _, err := range e[1:] {
		s += "; " + err.Error()
	}
	return s
}

// network is the raw toml shape of one network block. Zero values mean
// "inherit from the defaults".
type network struct {
	Host          string   `toml:"host"`
	Port          uint16   `toml:"port"`
	TLS           bool     `toml:"tls"`
	Password      string   `toml:"password"`
	Nicks         []string `toml:"nicks"`
	Hostname      string   `toml:"hostname"`
	Realname      string   `toml:"realname"`
	SASLUser      string   `toml:"sasl_user"`
	SASLPass      string   `toml:"sasl_pass"`
	NickServPass  string   `toml:"nickserv_pass"`
	Channels      []string `toml:"channels"`
	Proxy         string   `toml:"proxy"`
	PingInterval  uint32   `toml:"ping_interval"`
	ReconnectBase uint32   `toml:"reconnect_base"`
	AutoConnect   bool     `toml:"autoconnect"`
}

// file is the raw toml shape of a whole configuration.
type file struct {
	network
	Networks map[string]network `toml:"networks"`
}

// Load reads and decodes a configuration file.
func Load(path string) ([]session.ServerSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: opening file")
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes a toml configuration into one ServerSpec per network.
func Decode(r io.Reader) ([]session.ServerSpec, error) {
	var raw file
	if _, err := toml.DecodeReader(r, &raw); err != nil {
		return nil, errors.Wrap(err, "config: decoding toml")
	}

	if len(raw.Networks) == 0 {
		return nil, errList{errors.New("config: at least one network is required")}
	}

	var specs []session.ServerSpec
	var errs errList
	for name, net := range raw.Networks {
		spec, es := makeSpec(name, merge(net, raw.network))
		if len(es) > 0 {
			errs = append(errs, es...)
			continue
		}
		specs = append(specs, spec)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return specs, nil
}

// merge fills a network's zero values from the global defaults.
func merge(net, def network) network {
	if len(net.Host) == 0 {
		net.Host = def.Host
	}
	if net.Port == 0 {
		net.Port = def.Port
	}
	if !net.TLS {
		net.TLS = def.TLS
	}
	if len(net.Password) == 0 {
		net.Password = def.Password
	}
	if len(net.Nicks) == 0 {
		net.Nicks = def.Nicks
	}
	if len(net.Hostname) == 0 {
		net.Hostname = def.Hostname
	}
	if len(net.Realname) == 0 {
		net.Realname = def.Realname
	}
	if len(net.SASLUser) == 0 {
		net.SASLUser = def.SASLUser
	}
	if len(net.SASLPass) == 0 {
		net.SASLPass = def.SASLPass
	}
	if len(net.NickServPass) == 0 {
		net.NickServPass = def.NickServPass
	}
	if len(net.Channels) == 0 {
		net.Channels = def.Channels
	}
	if len(net.Proxy) == 0 {
		net.Proxy = def.Proxy
	}
	if net.PingInterval == 0 {
		net.PingInterval = def.PingInterval
	}
	if net.ReconnectBase == 0 {
		net.ReconnectBase = def.ReconnectBase
	}
	if !net.AutoConnect {
		net.AutoConnect = def.AutoConnect
	}
	return net
}

// makeSpec validates one merged network and builds its ServerSpec.
func makeSpec(name string, net network) (session.ServerSpec, errList) {
	var errs errList
	if len(net.Host) == 0 {
		errs = append(errs, fmt.Errorf(fmtErrMissing, name, "host"))
	}
	if len(net.Nicks) == 0 {
		errs = append(errs, fmt.Errorf(fmtErrMissing, name, "nicks"))
	}
	for _, n := range net.Nicks {
		if len(n) == 0 {
			errs = append(errs, fmt.Errorf(fmtErrInvalid, name, "nick", n))
		}
	}
	if (len(net.SASLUser) == 0) != (len(net.SASLPass) == 0) {
		errs = append(errs, fmt.Errorf(fmtErrInvalid, name, "sasl credentials",
			"user and pass must be set together"))
	}
	if len(errs) > 0 {
		return session.ServerSpec{}, errs
	}

	port := net.Port
	if port == 0 {
		port = defaultPort
	}
	hostname := net.Hostname
	if len(hostname) == 0 {
		hostname = net.Host
	}
	realname := net.Realname
	if len(realname) == 0 {
		realname = net.Nicks[0]
	}

	spec := session.ServerSpec{
		Addr:          net.Host,
		Port:          port,
		TLS:           net.TLS,
		ServerPass:    net.Password,
		Nicks:         net.Nicks,
		Hostname:      hostname,
		Realname:      realname,
		NickServIdent: net.NickServPass,
		Join:          net.Channels,
		Alias:         name,
		Proxy:         net.Proxy,
		PingInterval:  time.Duration(net.PingInterval) * time.Second,
		ReconnectBase: time.Duration(net.ReconnectBase) * time.Second,
		AutoConnect:   net.AutoConnect,
	}
	if len(net.SASLUser) > 0 {
		spec.SASL = &session.SASLAuth{
			Username: net.SASLUser,
			Password: net.SASLPass,
		}
	}
	return spec, nil
}
