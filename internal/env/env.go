package env

import (
	"os"
	"strings"
)

type Var map[string]string

// Env composes the environment handed to spawned server processes:
// the daemon's own environment as the base, panel-wide variables on top,
// then per-server overrides. Values may reference other variables with
// ${VAR}; expansion is a single pass over the composed map.
type Env struct {
	Var Var // panel-wide variables (K->V)
	env Var // cached base from the daemon's environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the daemon's current environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			v := kv[i+1:]
			if k == "" {
				continue
			}
			base[k] = v
		}
	}
	e.env = base
}

// Set sets a panel-wide variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes a panel-wide variable.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// Merge builds the final "K=V" environment list for one server:
// daemon base, then panel-wide Var, then the server's own entries.
// Malformed entries without a key are dropped. ${VAR} placeholders
// are expanded against the composed map, no recursion.
func (e *Env) Merge(perServer []string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var)
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, kv := range perServer {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			v := kv[i+1:]
			if k == "" {
				continue
			}
			m[k] = v
		}
	}
	expanded := make(Var, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}
	out := make([]string, 0, len(expanded))
	for k, v := range expanded {
		if k == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	return out
}

func expand(s string, m Var) string {
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
