package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/poll_overlay/internal/relay"
)

func registerOverlayHandlers(api huma.API, s *Server) {
	type settingsOutput struct {
		Body relay.OverlaySettings
	}
	huma.Register(api, huma.Operation{OperationID: "get-overlay-settings", Method: http.MethodGet, Path: "/api/v1/overlay/settings", Summary: "Get overlay display settings", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *struct{}) (*settingsOutput, error) {
			out := &settingsOutput{}
			out.Body = s.relay.Settings()
			return out, nil
		})

	type updateSettingsInput struct {
		Body relay.OverlaySettings
	}
	huma.Register(api, huma.Operation{OperationID: "update-overlay-settings", Method: http.MethodPut, Path: "/api/v1/overlay/settings", Summary: "Update overlay display settings", Description: "Persists the settings and pushes them to every connected display client.", Tags: []string{"Overlay"}},
		func(ctx context.Context, input *updateSettingsInput) (*settingsOutput, error) {
			if err := s.relay.UpdateSettings(input.Body); err != nil {
				return nil, huma.Error400BadRequest(err.Error())
			}
			out := &settingsOutput{}
			out.Body = s.relay.Settings()
			return out, nil
		})
}
