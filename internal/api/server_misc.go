package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/poll_overlay/internal/relay"
)

func registerMiscHandlers(api huma.API, s *Server) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type statusOutput struct {
		Body relay.Status
	}
	huma.Register(api, huma.Operation{OperationID: "server-status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Full server status snapshot", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			out := &statusOutput{}
			out.Body = s.relay.Status(ctx)
			return out, nil
		})

	type clientsOutput struct {
		Body struct {
			Count   int             `json:"count"`
			Clients []*relay.Client `json:"clients"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-clients", Method: http.MethodGet, Path: "/api/v1/clients", Summary: "List connected display clients", Tags: []string{"Clients"}},
		func(ctx context.Context, input *struct{}) (*clientsOutput, error) {
			out := &clientsOutput{}
			out.Body.Clients = s.hub.Clients()
			if out.Body.Clients == nil {
				out.Body.Clients = []*relay.Client{}
			}
			out.Body.Count = len(out.Body.Clients)
			return out, nil
		})

	type simulateOutput struct {
		Body struct {
			Status string         `json:"status"`
			Poll   relay.PollData `json:"poll"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "simulate-poll", Method: http.MethodPost, Path: "/api/v1/simulate-poll", Summary: "Broadcast a fake poll to all clients", Description: "Development helper. Plays a staged begin/progress/end sequence so overlays can be styled without a live poll.", Tags: []string{"Development"}},
		func(ctx context.Context, input *struct{}) (*simulateOutput, error) {
			if !s.cfg.IsDevelopment() {
				return nil, huma.Error403Forbidden("poll simulation is only available in development")
			}
			out := &simulateOutput{}
			out.Body.Status = "simulating"
			out.Body.Poll = s.relay.SimulateBroadcast()
			return out, nil
		})
}
