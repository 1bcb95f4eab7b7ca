package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/ukydev/fleet-maintenance/internal/aggregate"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// OpenFeed subscribes to every collection visible to the principal and
// merges them into a live feed. The returned func releases every
// subscription; it must be called on every exit path and may be called more
// than once.
func (s *Service) OpenFeed(ctx context.Context) (*aggregate.Feed, func(), error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, nil, err
	}

	feed := aggregate.NewFeed(s.log.WithField("user_id", p.UserID))

	type source struct {
		src   aggregate.Source
		scope db.Scope
	}
	sources := []source{{aggregate.SourcePersonal, db.PersonalScope(p.UserID)}}
	if p.HasFleet() && p.Role.HasPermission(models.ActionViewVehicles) {
		sources = append(sources, source{aggregate.SourceFleet, db.FleetScope(p.FleetID)})
	}

	var subs []db.Subscription
	var once sync.Once
	release := func() {
		once.Do(func() {
			for _, sub := range subs {
				sub.Close()
			}
		})
	}

	for _, src := range sources {
		src := src
		watches := []struct {
			kind string
			open func() (db.Subscription, error)
			fail func(error)
		}{
			{"vehicles", func() (db.Subscription, error) {
				return s.store.WatchVehicles(ctx, src.scope, func(v []models.Vehicle, err error) { feed.SetVehicles(src.src, v, err) })
			}, func(err error) { feed.SetVehicles(src.src, nil, err) }},
			{"tasks", func() (db.Subscription, error) {
				return s.store.WatchTasks(ctx, src.scope, func(t []models.MaintenanceTask, err error) { feed.SetTasks(src.src, t, err) })
			}, func(err error) { feed.SetTasks(src.src, nil, err) }},
			{"logs", func() (db.Subscription, error) {
				return s.store.WatchLogs(ctx, src.scope, func(l []models.ServiceLog, err error) { feed.SetLogs(src.src, l, err) })
			}, func(err error) { feed.SetLogs(src.src, nil, err) }},
		}

		for _, o := range watches {
			sub, err := o.open()
			if err != nil {
				if src.src == aggregate.SourceFleet {
					o.fail(err)
					continue
				}
				release()
				return nil, nil, fmt.Errorf("watch personal %s: %w", o.kind, err)
			}
			subs = append(subs, sub)
		}
	}
	return feed, release, nil
}
