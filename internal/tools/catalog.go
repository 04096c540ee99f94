package tools

import (
	"context"
	"time"

	"github.com/dahshury/clinic-whatsapp-bot/internal/calendar"
	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/internal/reservation"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

// ReservationService is the slice of the reservation engine the tools call.
type ReservationService interface {
	Reserve(ctx context.Context, req reservation.ReserveRequest) (reservation.Result, error)
	Modify(ctx context.Context, req reservation.ModifyRequest) (reservation.Result, error)
	Cancel(ctx context.Context, req reservation.CancelRequest) (reservation.Result, error)
	GetAvailableSlots(ctx context.Context, req reservation.AvailabilityRequest) (reservation.Result, error)
	SearchAppointments(ctx context.Context, req reservation.SearchRequest) (reservation.Result, error)
	CustomerReservations(ctx context.Context, waID string, includeCancelled, arabic bool) (reservation.Result, error)
	MoveDateReservations(ctx context.Context, from, to string, hijri, arabic bool, persona reservation.Persona) (reservation.Result, error)
}

// CustomerService is the registry slice exposed to admin tools.
type CustomerService interface {
	Search(ctx context.Context, q string, limit int) ([]store.Customer, error)
}

// LocationSender shares the clinic pin over WhatsApp.
type LocationSender interface {
	SendLocation(ctx context.Context, waID string, latitude, longitude float64, name, address string) (string, error)
}

// BusinessLocation is the clinic's pin, loaded from configuration.
type BusinessLocation struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}

// Services bundles everything the tool handlers need.
type Services struct {
	Engine    ReservationService
	Customers CustomerService
	Sender    LocationSender
	Schedule  *calendar.Schedule
	Business  BusinessLocation
	Now       func() time.Time
}

func (s Services) now() time.Time {
	loc := time.UTC
	if s.Schedule != nil && s.Schedule.Location != nil {
		loc = s.Schedule.Location
	}
	if s.Now != nil {
		return s.Now().In(loc)
	}
	return time.Now().In(loc)
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func boolProp(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func schema(required []string, props map[string]any) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// Default builds the customer-facing registry advertised to the LLM.
func Default(svc Services, m *metrics.Metrics, logger *logging.Logger) *Registry {
	r := NewRegistry("default", m, logger)
	registerShared(r, svc)
	return r
}

// SystemAgent builds the admin registry with batch and lookup variants on
// top of the customer-facing tools.
func SystemAgent(svc Services, m *metrics.Metrics, logger *logging.Logger) *Registry {
	r := NewRegistry("system_agent", m, logger)
	registerShared(r, svc)
	registerAdmin(r, svc)
	return r
}

func registerShared(r *Registry, svc Services) {
	r.Register(Descriptor{
		Name:        "send_business_location",
		Description: "Send the clinic's location pin to the customer over WhatsApp.",
		Schema: schema(nil, map[string]any{
			"wa_id": strProp("Customer WhatsApp number."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			waID := argString(args, "wa_id")
			id, err := svc.Sender.SendLocation(ctx, waID,
				svc.Business.Latitude, svc.Business.Longitude,
				svc.Business.Name, svc.Business.Address)
			if err != nil {
				return nil, err
			}
			return map[string]any{"success": true, "message_id": id}, nil
		},
	})

	r.Register(Descriptor{
		Name:        "get_current_datetime",
		Description: "Current date and time in the clinic timezone, with the Hijri date and Ramadan flag.",
		Schema:      schema(nil, map[string]any{}),
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			now := svc.now()
			out := map[string]any{
				"gregorian_date": now.Format("2006-01-02"),
				"time":           now.Format("15:04"),
				"time_12h":       now.Format("03:04 PM"),
				"day_name":       now.Weekday().String(),
				"is_ramadan":     calendar.IsRamadan(now),
			}
			if hijri, err := calendar.FormatDate(now, true); err == nil {
				out["hijri_date"] = hijri
			}
			return out, nil
		},
	})

	r.Register(Descriptor{
		Name:        "get_customer_reservations",
		Description: "List the customer's reservations.",
		Schema: schema(nil, map[string]any{
			"wa_id":             strProp("Customer WhatsApp number."),
			"include_cancelled": boolProp("Include cancelled reservations."),
			"ar":                boolProp("Respond in Arabic."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.Engine.CustomerReservations(ctx,
				argString(args, "wa_id"), argBool(args, "include_cancelled"), argBool(args, "ar"))
		},
	})

	r.Register(Descriptor{
		Name:        "get_available_time_slots",
		Description: "Free time slots on one date.",
		Schema: schema([]string{"date"}, map[string]any{
			"date":             strProp("Date, Gregorian YYYY-MM-DD or Hijri when hijri=true."),
			"hijri":            boolProp("Interpret the date as Hijri."),
			"max_reservations": intProp("Optional stricter capacity override."),
			"ar":               boolProp("Respond in Arabic."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.Engine.GetAvailableSlots(ctx, reservation.AvailabilityRequest{
				Date:            argString(args, "date"),
				Hijri:           argBool(args, "hijri"),
				MaxReservations: argInt(args, "max_reservations", 0),
				Arabic:          argBool(args, "ar"),
				Persona:         reservation.PersonaAgent,
			})
		},
	})

	r.Register(Descriptor{
		Name:        "search_available_appointments",
		Description: "Scan nearby dates for free slots, optionally closest to a preferred time.",
		Schema: schema(nil, map[string]any{
			"start_date":    strProp("First date to consider; defaults to today."),
			"time_slot":     strProp("Preferred time, e.g. 11:00 AM."),
			"days_forward":  intProp("Days to scan forward, default 3."),
			"days_backward": intProp("Days to scan backward, default 0."),
			"hijri":         boolProp("Interpret start_date as Hijri."),
			"ar":            boolProp("Respond in Arabic."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.Engine.SearchAppointments(ctx, reservation.SearchRequest{
				StartDate:    argString(args, "start_date"),
				TimeSlot:     argString(args, "time_slot"),
				DaysForward:  argInt(args, "days_forward", 0),
				DaysBackward: argInt(args, "days_backward", 0),
				Hijri:        argBool(args, "hijri"),
				Arabic:       argBool(args, "ar"),
				Persona:      reservation.PersonaAgent,
			})
		},
	})

	r.Register(Descriptor{
		Name:        "reserve_time_slot",
		Description: "Book an appointment for the customer.",
		Schema: schema([]string{"customer_name", "date", "time_slot", "reservation_type"}, map[string]any{
			"wa_id":            strProp("Customer WhatsApp number."),
			"customer_name":    strProp("Customer display name."),
			"date":             strProp("Date, Gregorian YYYY-MM-DD or Hijri when hijri=true."),
			"time_slot":        strProp("Slot time, e.g. 11:00 AM."),
			"reservation_type": intProp("0 for check-up, 1 for follow-up."),
			"hijri":            boolProp("Interpret the date as Hijri."),
			"max_reservations": intProp("Optional stricter capacity override."),
			"ar":               boolProp("Respond in Arabic."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.Engine.Reserve(ctx, reservation.ReserveRequest{
				WaID:            argString(args, "wa_id"),
				CustomerName:    argString(args, "customer_name"),
				Date:            argString(args, "date"),
				Time:            argString(args, "time_slot"),
				Type:            argInt(args, "reservation_type", 0),
				Hijri:           argBool(args, "hijri"),
				MaxReservations: argInt(args, "max_reservations", 0),
				Arabic:          argBool(args, "ar"),
				Persona:         reservation.PersonaAgent,
			})
		},
	})

	r.Register(Descriptor{
		Name:        "modify_reservation",
		Description: "Change the customer's upcoming reservation: date, time, type or name.",
		Schema: schema(nil, map[string]any{
			"wa_id":            strProp("Customer WhatsApp number."),
			"new_date":         strProp("New date."),
			"new_time_slot":    strProp("New slot time."),
			"new_name":         strProp("New customer name."),
			"new_type":         intProp("New type, 0 check-up or 1 follow-up."),
			"approximate":      boolProp("When the requested slot is full, take the nearest free slot on the same date."),
			"hijri":            boolProp("Interpret new_date as Hijri."),
			"max_reservations": intProp("Optional stricter capacity override."),
			"reservation_id":   intProp("Target reservation id when the customer has several."),
			"ar":               boolProp("Respond in Arabic."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.Engine.Modify(ctx, reservation.ModifyRequest{
				WaID:            argString(args, "wa_id"),
				ReservationID:   int64(argInt(args, "reservation_id", 0)),
				NewDate:         argString(args, "new_date"),
				NewTime:         argString(args, "new_time_slot"),
				NewName:         argString(args, "new_name"),
				NewType:         argIntPtr(args, "new_type"),
				MaxReservations: argInt(args, "max_reservations", 0),
				Approximate:     argBool(args, "approximate"),
				Hijri:           argBool(args, "hijri"),
				Arabic:          argBool(args, "ar"),
				Persona:         reservation.PersonaAgent,
			})
		},
	})

	r.Register(Descriptor{
		Name:        "cancel_reservation",
		Description: "Cancel the customer's reservation(s). Never touches past appointments.",
		Schema: schema(nil, map[string]any{
			"wa_id":          strProp("Customer WhatsApp number."),
			"date":           strProp("Cancel only reservations on this date."),
			"reservation_id": intProp("Cancel one specific reservation."),
			"hijri":          boolProp("Interpret the date as Hijri."),
			"ar":             boolProp("Respond in Arabic."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.Engine.Cancel(ctx, reservation.CancelRequest{
				WaID:          argString(args, "wa_id"),
				Date:          argString(args, "date"),
				ReservationID: int64(argInt(args, "reservation_id", 0)),
				Hijri:         argBool(args, "hijri"),
				Arabic:        argBool(args, "ar"),
			})
		},
	})
}

func registerAdmin(r *Registry, svc Services) {
	r.Register(Descriptor{
		Name:        "batch_reserve",
		Description: "Book several appointments in one call.",
		Schema: schema([]string{"items"}, map[string]any{
			"items": map[string]any{
				"type":        "array",
				"description": "Reservations to create; each item matches reserve_time_slot's arguments.",
				"items":       map[string]any{"type": "object"},
			},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var results []reservation.Result
			for _, item := range argMapSlice(args, "items") {
				res, err := svc.Engine.Reserve(ctx, reservation.ReserveRequest{
					WaID:            argString(item, "wa_id"),
					CustomerName:    argString(item, "customer_name"),
					Date:            argString(item, "date"),
					Time:            argString(item, "time_slot"),
					Type:            argInt(item, "reservation_type", 0),
					Hijri:           argBool(item, "hijri"),
					MaxReservations: argInt(item, "max_reservations", 0),
					Arabic:          argBool(item, "ar"),
					Persona:         reservation.PersonaSecretary,
				})
				if err != nil {
					return nil, err
				}
				results = append(results, res)
			}
			return map[string]any{"results": results}, nil
		},
	})

	r.Register(Descriptor{
		Name:        "batch_modify",
		Description: "Modify several reservations in one call.",
		Schema: schema([]string{"items"}, map[string]any{
			"items": map[string]any{
				"type":        "array",
				"description": "Modifications; each item matches modify_reservation's arguments.",
				"items":       map[string]any{"type": "object"},
			},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var results []reservation.Result
			for _, item := range argMapSlice(args, "items") {
				res, err := svc.Engine.Modify(ctx, reservation.ModifyRequest{
					WaID:            argString(item, "wa_id"),
					ReservationID:   int64(argInt(item, "reservation_id", 0)),
					NewDate:         argString(item, "new_date"),
					NewTime:         argString(item, "new_time_slot"),
					NewName:         argString(item, "new_name"),
					NewType:         argIntPtr(item, "new_type"),
					MaxReservations: argInt(item, "max_reservations", 0),
					Approximate:     argBool(item, "approximate"),
					Hijri:           argBool(item, "hijri"),
					Arabic:          argBool(item, "ar"),
					Persona:         reservation.PersonaSecretary,
				})
				if err != nil {
					return nil, err
				}
				results = append(results, res)
			}
			return map[string]any{"results": results}, nil
		},
	})

	r.Register(Descriptor{
		Name:        "batch_cancel",
		Description: "Cancel reservations for several customers in one call.",
		Schema: schema([]string{"items"}, map[string]any{
			"items": map[string]any{
				"type":        "array",
				"description": "Cancellations; each item matches cancel_reservation's arguments.",
				"items":       map[string]any{"type": "object"},
			},
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var results []reservation.Result
			for _, item := range argMapSlice(args, "items") {
				res, err := svc.Engine.Cancel(ctx, reservation.CancelRequest{
					WaID:          argString(item, "wa_id"),
					Date:          argString(item, "date"),
					ReservationID: int64(argInt(item, "reservation_id", 0)),
					Hijri:         argBool(item, "hijri"),
					Arabic:        argBool(item, "ar"),
				})
				if err != nil {
					return nil, err
				}
				results = append(results, res)
			}
			return map[string]any{"results": results}, nil
		},
	})

	r.Register(Descriptor{
		Name:        "move_date_reservations",
		Description: "Move every active reservation from one date to another, used around sudden closures.",
		Schema: schema([]string{"from_date", "to_date"}, map[string]any{
			"from_date": strProp("Source date."),
			"to_date":   strProp("Destination date."),
			"hijri":     boolProp("Interpret both dates as Hijri."),
			"ar":        boolProp("Respond in Arabic."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return svc.Engine.MoveDateReservations(ctx,
				argString(args, "from_date"), argString(args, "to_date"),
				argBool(args, "hijri"), argBool(args, "ar"),
				reservation.PersonaSecretary)
		},
	})

	r.Register(Descriptor{
		Name:        "search_customers",
		Description: "Find customers by partial name or phone number.",
		Schema: schema([]string{"query"}, map[string]any{
			"query": strProp("Partial name or number."),
			"limit": intProp("Maximum results, default 20."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			customers, err := svc.Customers.Search(ctx, argString(args, "query"), argInt(args, "limit", 20))
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(customers))
			for _, c := range customers {
				item := map[string]any{
					"wa_id":       c.WaID,
					"name":        c.Name,
					"is_blocked":  c.IsBlocked,
					"is_favorite": c.IsFavorite,
				}
				if c.Age != nil {
					item["age"] = *c.Age
				}
				out = append(out, item)
			}
			return map[string]any{"customers": out}, nil
		},
	})

	r.Register(Descriptor{
		Name:        "get_availability_batch",
		Description: "Free slots for several dates at once.",
		Schema: schema([]string{"dates"}, map[string]any{
			"dates": map[string]any{
				"type":        "array",
				"description": "Dates to check.",
				"items":       map[string]any{"type": "string"},
			},
			"hijri": boolProp("Interpret the dates as Hijri."),
			"ar":    boolProp("Respond in Arabic."),
		}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			results := make(map[string]reservation.Result)
			for _, date := range argStringSlice(args, "dates") {
				res, err := svc.Engine.GetAvailableSlots(ctx, reservation.AvailabilityRequest{
					Date:    date,
					Hijri:   argBool(args, "hijri"),
					Arabic:  argBool(args, "ar"),
					Persona: reservation.PersonaSecretary,
				})
				if err != nil {
					return nil, err
				}
				results[date] = res
			}
			return map[string]any{"results": results}, nil
		},
	})
}
