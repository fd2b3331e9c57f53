package store

import (
	"context"

	logx "github.com/fintalk/server/pkg/logger"
)

var seedCardholders = []Cardholder{
	{Username: "john_doe", PhoneNumber: "+1234567890", CardNumber: "4532-1234-5678-9010", Status: StatusActive},
	{Username: "jane_smith", PhoneNumber: "+1234567891", CardNumber: "5425-2345-6789-0123", Status: StatusActive},
	{Username: "bob_johnson", PhoneNumber: "+1234567892", CardNumber: "3782-3456-7890-1234", Status: StatusBlocked},
	{Username: "alice_williams", PhoneNumber: "+1234567893", CardNumber: "6011-4567-8901-2345", Status: StatusActive},
	{Username: "charlie_brown", PhoneNumber: "+1234567894", CardNumber: "4916-5678-9012-3456", Status: StatusActive},
	{Username: "diana_prince", PhoneNumber: "+1234567895", CardNumber: "5234-6789-0123-4567", Status: StatusActive},
	{Username: "edward_norton", PhoneNumber: "+1234567896", CardNumber: "3714-7890-1234-5678", Status: StatusBlocked},
	{Username: "fiona_gallagher", PhoneNumber: "+1234567897", CardNumber: "6011-8901-2345-6789", Status: StatusActive},
	{Username: "george_martin", PhoneNumber: "+1234567898", CardNumber: "4539-9012-3456-7890", Status: StatusActive},
	{Username: "hannah_montana", PhoneNumber: "+1234567899", CardNumber: "5412-0123-4567-8901", Status: StatusActive},
}

// Seed replaces all cardholders with the demo data set. Intended for local
// environments only.
func (s *Store) Seed(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&Cardholder{}).Error; err != nil {
		return err
	}

	for i := range seedCardholders {
		ch := seedCardholders[i]
		if err := s.Create(ctx, &ch); err != nil {
			return err
		}
		logx.Info().
			Str("username", ch.Username).
			Str("phone_number", ch.PhoneNumber).
			Str("status", string(ch.Status)).
			Msg("Created cardholder")
	}

	return nil
}
