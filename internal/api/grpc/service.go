// Copyright 2026 fanjia1024
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

// Package grpc 提供 gRPC 健康检查服务，供负载均衡与编排系统探测
package grpc

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName 对外报告健康状态的服务名
const ServiceName = "codex.Bridge"

// Server 健康检查服务端
type Server struct {
	health *health.Server
}

// NewServer 创建健康检查服务，初始为 SERVING
func NewServer() *Server {
	s := &Server{health: health.NewServer()}
	s.SetServing(true)
	return s
}

// Register 注册 Health 与反射服务到 grpc.Server
func (s *Server) Register(grpcServer *grpc.Server) {
	healthpb.RegisterHealthServer(grpcServer, s.health)
	reflection.Register(grpcServer)
}

// SetServing 更新整体与 ServiceName 的状态
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Shutdown 将所有服务置为 NOT_SERVING，之后的状态更新被忽略
func (s *Server) Shutdown() { s.health.Shutdown() }

// Run 持有 gRPC Server 与 Listener，用于 GracefulStop 时关闭
type Run struct {
	Health *Server
	srv    *grpc.Server
	lis    net.Listener
}

// Start 监听端口并在 goroutine 中 Serve
func Start(port int) (*Run, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return Serve(lis), nil
}

// Serve 在给定 Listener 上启动服务
func Serve(lis net.Listener) *Run {
	srv := grpc.NewServer()
	hs := NewServer()
	hs.Register(srv)
	go func() {
		_ = srv.Serve(lis)
	}()
	return &Run{Health: hs, srv: srv, lis: lis}
}

// GracefulStop 先报告 NOT_SERVING，再停止服务
func (r *Run) GracefulStop() {
	if r.Health != nil {
		r.Health.Shutdown()
	}
	if r.srv != nil {
		r.srv.GracefulStop()
	}
}
