// Command smoke drives one admission lifecycle against a running allot-api
// in a throwaway tenant and exits non-zero on any deviation.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"allot.org/internal/alloc"
	"allot.org/internal/auth"
	"allot.org/internal/client"
	"allot.org/internal/ids"
	"allot.org/internal/obs"
)

func main() {
	log := obs.Logger()

	addr := flag.String("addr", envOr("ALLOT_API_URL", "http://localhost:8080"), "API base URL")
	secret := flag.String("secret", os.Getenv("ALLOT_AUTH_SECRET"), "token signing secret")
	issuer := flag.String("issuer", envOr("ALLOT_AUTH_ISSUER", auth.DefaultIssuer), "token issuer")
	flag.Parse()

	signer, err := auth.NewSigner(*secret, *issuer)
	if err != nil {
		log.WithError(err).Fatal("init signer")
	}
	tenant := "smoke-" + ids.New()
	token, err := signer.GenerateToken("smoke", tenant, []string{auth.RoleAdmin}, 5*time.Minute)
	if err != nil {
		log.WithError(err).Fatal("generate token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := client.New(*addr, token)
	if err := run(ctx, c); err != nil {
		log.WithError(err).WithField("tenant", tenant).Fatal("smoke test failed")
	}
	log.WithFields(logrus.Fields{"tenant": tenant, "addr": *addr}).Info("smoke test passed")
}

func run(ctx context.Context, c *client.Client) error {
	facility, err := c.CreateFacility(ctx, alloc.NewFacility{Name: "Smoke Hall", TotalCapacity: 2})
	if err != nil {
		return err
	}
	unit, err := c.CreateUnit(ctx, alloc.NewUnit{FacilityID: facility.ID, Identifier: "S-1", Capacity: 2})
	if err != nil {
		return err
	}

	today := time.Now().UTC().Format("2006-01-02")
	var admitted []alloc.Assignment
	for _, occupant := range []string{"smoke-1", "smoke-2"} {
		asg, err := c.Admit(ctx, alloc.Admission{UnitID: unit.ID, OccupantID: occupant, StartDate: today})
		if err != nil {
			return err
		}
		admitted = append(admitted, asg)
	}

	if _, err := c.Admit(ctx, alloc.Admission{UnitID: unit.ID, OccupantID: "smoke-3", StartDate: today}); !errors.Is(err, alloc.ErrCapacityExceeded) {
		return errors.Join(errors.New("expected capacity rejection"), err)
	}
	if err := expectUnitStatus(ctx, c, unit.ID, alloc.UnitOccupied); err != nil {
		return err
	}

	if _, err := c.Transition(ctx, admitted[0].ID, alloc.Transition{Status: string(alloc.AssignmentCompleted), EndDate: today}); err != nil {
		return err
	}
	if err := expectUnitStatus(ctx, c, unit.ID, alloc.UnitAvailable); err != nil {
		return err
	}

	rec, err := c.ScheduleMaintenance(ctx, alloc.NewMaintenance{UnitID: unit.ID, ScheduledDate: today, Description: "smoke check"})
	if err != nil {
		return err
	}
	if _, err := c.Admit(ctx, alloc.Admission{UnitID: unit.ID, OccupantID: "smoke-4", StartDate: today}); !errors.Is(err, alloc.ErrUnitUnavailable) {
		return errors.Join(errors.New("expected maintenance rejection"), err)
	}
	if _, err := c.UpdateMaintenance(ctx, rec.ID, alloc.MaintenanceUpdate{Status: string(alloc.MaintenanceCancelled)}); err != nil {
		return err
	}

	if _, err := c.Transition(ctx, admitted[1].ID, alloc.Transition{Status: string(alloc.AssignmentCancelled)}); err != nil {
		return err
	}
	return expectUnitStatus(ctx, c, unit.ID, alloc.UnitAvailable)
}

func expectUnitStatus(ctx context.Context, c *client.Client, unitID string, want alloc.UnitStatus) error {
	u, err := c.GetUnit(ctx, unitID)
	if err != nil {
		return err
	}
	if u.Status != want {
		return errors.New("unit " + unitID + " is " + string(u.Status) + ", want " + string(want))
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
