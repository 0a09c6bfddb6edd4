package server

import (
	"github.com/NeuralTrust/TrustGuard/pkg/config"
	"github.com/NeuralTrust/TrustGuard/pkg/server/router"
	"github.com/sirupsen/logrus"
)

const APIServerName = "api"

type (
	APIServerDI struct {
		Config  *config.Config
		Logger  *logrus.Logger
		Routers []router.ServerRouter
	}
	APIServer struct {
		*BaseServer
	}
)

// NewAPIServer serves the report check endpoint behind the intrusion guard.
func NewAPIServer(di APIServerDI) *APIServer {
	return &APIServer{
		BaseServer: NewBaseServer(APIServerName, di.Config.Server.ApiPort, di.Config, di.Logger).
			WithRouters(di.Routers...),
	}
}
