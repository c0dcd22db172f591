// Copyright 2025 Conductor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Worker is the interface an ephemeral worker process implements.
// Unlike hector's pkg/plugins/grpc providers (LLM/Database/Embedder),
// a worker's contract is a single blocking call, so this package
// dispenses it over go-plugin's net/rpc protocol rather than gRPC —
// there is no streaming or bidirectional call here to justify the
// protobuf service hector's LLM/Database plugins define.
type Worker interface {
	Execute(env Envelope) (Result, error)
	ReportMemory(sessionID string) (MemoryReport, error)
}

// handshakeConfig is exchanged between supervisor and worker before
// any RPC call, the same purpose as
// pkg/plugins/grpc.handshakeConfig but with a magic cookie scoped to
// this runtime's worker contract.
var handshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "CONDUCTOR_WORKER_PLUGIN",
	MagicCookieValue: "conductor-worker-v1",
}

// workerPluginMap is passed to plugin.ClientConfig.Plugins; "worker"
// is the name Dispense must request.
func workerPluginMap(impl Worker) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		"worker": &workerPlugin{Impl: impl},
	}
}

// workerPlugin implements plugin.Plugin for the net/rpc protocol: on
// the worker side it serves Impl; on the supervisor side it returns
// an RPC stub.
type workerPlugin struct {
	Impl Worker
}

func (p *workerPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &workerRPCServer{Impl: p.Impl}, nil
}

func (p *workerPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &workerRPCClient{client: c}, nil
}

// workerRPCServer runs inside the worker process.
type workerRPCServer struct {
	Impl Worker
}

func (s *workerRPCServer) Execute(env Envelope, resp *Result) error {
	r, err := s.Impl.Execute(env)
	*resp = r
	return err
}

func (s *workerRPCServer) ReportMemory(sessionID string, resp *MemoryReport) error {
	r, err := s.Impl.ReportMemory(sessionID)
	*resp = r
	return err
}

// workerRPCClient runs inside the supervisor process, and is what
// Supervisor.Spawn calls through.
type workerRPCClient struct {
	client *rpc.Client
}

func (c *workerRPCClient) Execute(env Envelope) (Result, error) {
	var resp Result
	err := c.client.Call("Plugin.Execute", env, &resp)
	return resp, err
}

func (c *workerRPCClient) ReportMemory(sessionID string) (MemoryReport, error) {
	var resp MemoryReport
	err := c.client.Call("Plugin.ReportMemory", sessionID, &resp)
	return resp, err
}
