package main

import (
	"context"
	"fmt"

	"github.com/loykin/craftd/pkg/client"
)

// apiClient is the CLI-side presenter over the public daemon client.
type apiClient struct {
	c *client.Client
}

func newAPIClient(flags *APIFlags) *apiClient {
	return &apiClient{c: client.New(client.Config{
		BaseURL: flags.URL,
		Timeout: flags.Timeout,
	})}
}

func printDetail(d client.ServerDetail) {
	line := fmt.Sprintf("%-20s %s", d.Name, d.Status)
	if d.PID > 0 {
		line += fmt.Sprintf("  pid=%d", d.PID)
	}
	if d.ExitCode != nil {
		line += fmt.Sprintf("  exit=%d", *d.ExitCode)
	}
	fmt.Println(line)
}

// Status prints all servers, or just the named one.
func (a *apiClient) Status(name string) error {
	servers, err := a.c.Servers(context.Background())
	if err != nil {
		return err
	}
	for _, s := range servers {
		if name == "" || s.Name == name {
			printDetail(s)
		}
	}
	return nil
}

// Lifecycle issues one of start/stop/restart/kill for the named server.
func (a *apiClient) Lifecycle(name, action string) error {
	ctx := context.Background()
	id, err := a.c.ResolveName(ctx, name)
	if err != nil {
		return err
	}
	switch action {
	case "start":
		err = a.c.Start(ctx, id)
	case "stop":
		err = a.c.Stop(ctx, id)
	case "restart":
		err = a.c.Restart(ctx, id)
	case "kill":
		err = a.c.Kill(ctx, id)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s requested\n", name, action)
	return nil
}

func (a *apiClient) Command(name, command string) error {
	ctx := context.Background()
	id, err := a.c.ResolveName(ctx, name)
	if err != nil {
		return err
	}
	return a.c.SendCommand(ctx, id, command)
}

func (a *apiClient) Logs(name string, limit int) error {
	ctx := context.Background()
	id, err := a.c.ResolveName(ctx, name)
	if err != nil {
		return err
	}
	lines, err := a.c.Logs(ctx, id, limit)
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	return nil
}
