package controllers

import (
	"context"

	"github.com/cyverse-de/go-mod/gotelnats"
	"github.com/cyverse-de/go-mod/pbinit"
	"github.com/cyverse-de/p/go/qms"
	"github.com/cyverse-de/p/go/svcerror"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/sirupsen/logrus"
)

// overagesForUsername looks up the overages of the user with the given username. Unknown users have no overages.
func (s Server) overagesForUsername(ctx context.Context, username string) ([]model.Overage, error) {
	quota, err := s.Entitlements.GetByUsername(ctx, s.normalizeUsername(username))
	if qmserrors.IsNotFound(err) {
		return []model.Overage{}, nil
	} else if err != nil {
		return nil, err
	}
	return quota.Overages(), nil
}

// GetUserOveragesNATS is the NATS handler for listing all of the dimensions that a user
// is in overage for.
func (s Server) GetUserOveragesNATS(subject, reply string, request *qms.AllUserOveragesRequest) {
	log := log.WithFields(logrus.Fields{"context": "list overages"})

	responseList := pbinit.NewOverageList()
	ctx, span := pbinit.InitAllUserOveragesRequest(request, subject)
	defer span.End()

	overages, err := s.overagesForUsername(ctx, request.GetUsername())
	if err != nil {
		responseList.Error = gotelnats.InitServiceError(
			ctx, err, &gotelnats.ErrorOptions{
				ErrorCode: svcerror.ErrorCode_INTERNAL,
			},
		)
	}

	for _, o := range overages {
		responseList.Overages = append(responseList.Overages, &qms.Overage{
			ResourceName: string(o.Dimension),
			Quota:        float64(o.Quota),
			Usage:        float64(o.Usage),
		})
	}

	if err = gotelnats.PublishResponse(ctx, s.NATSConn, reply, responseList); err != nil {
		log.Error(err)
	}
}

// InOverageNATS is the NATS handler for checking if a user is in overage
// for a particular dimension.
func (s Server) InOverageNATS(subject, reply string, request *qms.IsOverageRequest) {
	log := log.WithFields(logrus.Fields{"context": "check if in overage"})

	response := pbinit.NewIsOverage()
	ctx, span := pbinit.InitIsOverageRequest(request, subject)
	defer span.End()

	overages, err := s.overagesForUsername(ctx, request.GetUsername())
	if err != nil {
		response.Error = gotelnats.InitServiceError(
			ctx, err, &gotelnats.ErrorOptions{
				ErrorCode: svcerror.ErrorCode_INTERNAL,
			},
		)
	}

	for _, o := range overages {
		if string(o.Dimension) == request.GetResourceName() {
			response.IsOverage = true
			break
		}
	}

	log.Debugf("overage check for %s: %t", request.GetUsername(), response.IsOverage)

	if err = gotelnats.PublishResponse(ctx, s.NATSConn, reply, response); err != nil {
		log.Error(err)
	}
}
