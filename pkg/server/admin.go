package server

import (
	"github.com/NeuralTrust/TrustGuard/pkg/config"
	"github.com/NeuralTrust/TrustGuard/pkg/server/router"
	"github.com/sirupsen/logrus"
)

const AdminServerName = "admin"

type (
	AdminServerDI struct {
		Config  *config.Config
		Logger  *logrus.Logger
		Routers []router.ServerRouter
	}
	AdminServer struct {
		*BaseServer
	}
)

func NewAdminServer(di AdminServerDI) *AdminServer {
	return &AdminServer{
		BaseServer: NewBaseServer(AdminServerName, di.Config.Server.AdminPort, di.Config, di.Logger).
			WithRouters(di.Routers...),
	}
}
