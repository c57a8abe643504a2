package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// Subscription is one recurring merchant charge on the user's account.
type Subscription struct {
	SubscriptionID string  `json:"subscription_id"`
	Merchant       string  `json:"merchant"`
	MonthlyAmount  float64 `json:"monthly_amount"`
	Active         bool    `json:"active"`
}

// ScheduledTransfer is a future-dated transfer between accounts.
type ScheduledTransfer struct {
	ScheduleID string  `json:"schedule_id"`
	UserID     string  `json:"user_id"`
	FromAcct   string  `json:"from_account"`
	ToAcct     string  `json:"to_account"`
	Amount     float64 `json:"amount"`
	Date       string  `json:"date"`
}

// Meeting is a booked advisor appointment.
type Meeting struct {
	MeetingID   string `json:"meeting_id"`
	UserID      string `json:"user_id"`
	AdvisorType string `json:"advisor_type"`
	Topic       string `json:"topic"`
	Slot        string `json:"slot"`
}

// Advisor is a bookable specialist.
type Advisor struct {
	AdvisorType string `json:"advisor_type"`
	Name        string `json:"name"`
	Speciality  string `json:"speciality"`
}

// Bank backs the local tool capabilities with in-memory state, so listings
// and the cancellations that follow them round-trip within a session.
type Bank struct {
	mu            sync.Mutex
	subscriptions map[string][]Subscription
	transfers     map[string][]ScheduledTransfer
	meetings      map[string][]Meeting
	advisors      []Advisor
}

// NewBank seeds demo subscription data and the advisor roster.
func NewBank() *Bank {
	return &Bank{
		subscriptions: map[string][]Subscription{},
		transfers:     map[string][]ScheduledTransfer{},
		meetings:      map[string][]Meeting{},
		advisors: []Advisor{
			{AdvisorType: "mortgage", Name: "Dana Reyes", Speciality: "home loans and affordability"},
			{AdvisorType: "investment", Name: "Priya Nair", Speciality: "portfolios and retirement"},
			{AdvisorType: "budgeting", Name: "Sam Okafor", Speciality: "spending plans and debt"},
		},
	}
}

func (b *Bank) userSubscriptions(userID string) []Subscription {
	if subs, ok := b.subscriptions[userID]; ok {
		return subs
	}
	subs := []Subscription{
		{SubscriptionID: "sub-001", Merchant: "StreamFlix", MonthlyAmount: 15.99, Active: true},
		{SubscriptionID: "sub-002", Merchant: "GymPass", MonthlyAmount: 49.00, Active: true},
		{SubscriptionID: "sub-003", Merchant: "CloudDrive", MonthlyAmount: 9.99, Active: true},
	}
	b.subscriptions[userID] = subs
	return subs
}

// Capabilities returns every local bank and calendar tool.
func (b *Bank) Capabilities() []*core.Capability {
	return []*core.Capability{
		b.listSubscriptions(),
		b.cancelSubscription(),
		b.transferToAccount(),
		b.scheduleTransfer(),
		b.listScheduledTransfers(),
		b.cancelScheduledTransfer(),
		b.listAdvisors(),
		b.scheduleAppointment(),
		b.listMeetings(),
		b.cancelMeeting(),
		b.sendEmail(),
		b.findDiscounts(),
	}
}

func (b *Bank) listSubscriptions() *core.Capability {
	return &core.Capability{
		Name:        "list_subscriptions",
		Kind:        core.KindLocalTool,
		Description: "List the user's active recurring subscriptions with merchant and monthly amount",
		InputSchema: ObjectSchema(map[string]any{}),
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			var active []Subscription
			for _, s := range b.userSubscriptions(call.UserID) {
				if s.Active {
					active = append(active, s)
				}
			}
			return &core.ToolResult{Success: true, Data: active}, nil
		},
	}
}

func (b *Bank) cancelSubscription() *core.Capability {
	return &core.Capability{
		Name:            "cancel_subscription",
		Kind:            core.KindLocalTool,
		Description:     "Cancel one of the user's recurring subscriptions",
		InputSchema:     ObjectSchema(map[string]any{"subscription_id": StringProperty("identifier from list_subscriptions"), "merchant": StringProperty("merchant name, for the confirmation summary")}, "subscription_id"),
		Mutating:        true,
		Sensitive:       true,
		SummaryTemplate: "Cancel the {{.merchant}} subscription",
		Lister:          "list_subscriptions",
		RequiredRef:     "subscription_id",
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			id, _ := call.Arguments["subscription_id"].(string)
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.userSubscriptions(call.UserID)
			for i := range subs {
				if subs[i].SubscriptionID == id && subs[i].Active {
					subs[i].Active = false
					return &core.ToolResult{Success: true, Data: map[string]any{
						"subscription_id": id,
						"merchant":        subs[i].Merchant,
						"cancelled":       true,
					}}, nil
				}
			}
			return &core.ToolResult{Success: false, Error: fmt.Sprintf("no active subscription %s", id)}, nil
		},
	}
}

func (b *Bank) transferToAccount() *core.Capability {
	return &core.Capability{
		Name:            "transfer_to_account",
		Kind:            core.KindLocalTool,
		Description:     "Move money between the user's accounts immediately",
		InputSchema:     ObjectSchema(map[string]any{"from_account": StringProperty("source account"), "to_account": StringProperty("destination account"), "amount": NumberProperty("amount to move")}, "from_account", "to_account", "amount"),
		Mutating:        true,
		Sensitive:       true,
		SummaryTemplate: "Transfer ${{.amount}} from {{.from_account}} to {{.to_account}}",
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			amount, ok := call.Arguments["amount"].(float64)
			if !ok || amount <= 0 {
				return &core.ToolResult{Success: false, Error: "amount must be a positive number"}, nil
			}
			return &core.ToolResult{Success: true, Data: map[string]any{
				"transfer_id":  uuid.NewString(),
				"from_account": call.Arguments["from_account"],
				"to_account":   call.Arguments["to_account"],
				"amount":       amount,
				"status":       "completed",
			}}, nil
		},
	}
}

func (b *Bank) scheduleTransfer() *core.Capability {
	return &core.Capability{
		Name:            "schedule_transfer",
		Kind:            core.KindLocalTool,
		Description:     "Schedule a future-dated transfer between the user's accounts",
		InputSchema:     ObjectSchema(map[string]any{"from_account": StringProperty("source account"), "to_account": StringProperty("destination account"), "amount": NumberProperty("amount to move"), "date": StringProperty("transfer date, YYYY-MM-DD")}, "from_account", "to_account", "amount", "date"),
		Mutating:        true,
		Sensitive:       true,
		SummaryTemplate: "Schedule a ${{.amount}} transfer from {{.from_account}} to {{.to_account}} on {{.date}}",
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			amount, ok := call.Arguments["amount"].(float64)
			if !ok || amount <= 0 {
				return &core.ToolResult{Success: false, Error: "amount must be a positive number"}, nil
			}
			date, _ := call.Arguments["date"].(string)
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return &core.ToolResult{Success: false, Error: "date must be YYYY-MM-DD"}, nil
			}
			st := ScheduledTransfer{
				ScheduleID: uuid.NewString(),
				UserID:     call.UserID,
				FromAcct:   asString(call.Arguments["from_account"]),
				ToAcct:     asString(call.Arguments["to_account"]),
				Amount:     amount,
				Date:       date,
			}
			b.mu.Lock()
			b.transfers[call.UserID] = append(b.transfers[call.UserID], st)
			b.mu.Unlock()
			return &core.ToolResult{Success: true, Data: st}, nil
		},
	}
}

func (b *Bank) listScheduledTransfers() *core.Capability {
	return &core.Capability{
		Name:        "list_scheduled_transfers",
		Kind:        core.KindLocalTool,
		Description: "List the user's pending scheduled transfers",
		InputSchema: ObjectSchema(map[string]any{}),
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			transfers := b.transfers[call.UserID]
			if transfers == nil {
				transfers = []ScheduledTransfer{}
			}
			return &core.ToolResult{Success: true, Data: transfers}, nil
		},
	}
}

func (b *Bank) cancelScheduledTransfer() *core.Capability {
	return &core.Capability{
		Name:            "cancel_scheduled_transfer",
		Kind:            core.KindLocalTool,
		Description:     "Cancel a pending scheduled transfer",
		InputSchema:     ObjectSchema(map[string]any{"schedule_id": StringProperty("identifier from list_scheduled_transfers")}, "schedule_id"),
		Mutating:        true,
		Sensitive:       true,
		SummaryTemplate: "Cancel scheduled transfer {{.schedule_id}}",
		Lister:          "list_scheduled_transfers",
		RequiredRef:     "schedule_id",
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			id, _ := call.Arguments["schedule_id"].(string)
			b.mu.Lock()
			defer b.mu.Unlock()
			transfers := b.transfers[call.UserID]
			for i, t := range transfers {
				if t.ScheduleID == id {
					b.transfers[call.UserID] = append(transfers[:i], transfers[i+1:]...)
					return &core.ToolResult{Success: true, Data: map[string]any{"schedule_id": id, "cancelled": true}}, nil
				}
			}
			return &core.ToolResult{Success: false, Error: fmt.Sprintf("no scheduled transfer %s", id)}, nil
		},
	}
}

func (b *Bank) listAdvisors() *core.Capability {
	return &core.Capability{
		Name:        "list_advisors",
		Kind:        core.KindLocalTool,
		Description: "List the advisor types available for appointments",
		InputSchema: ObjectSchema(map[string]any{}),
		Handler: func(_ context.Context, _ *core.ToolCall) (*core.ToolResult, error) {
			return &core.ToolResult{Success: true, Data: b.advisors}, nil
		},
	}
}

func (b *Bank) scheduleAppointment() *core.Capability {
	return &core.Capability{
		Name:            "schedule_appointment",
		Kind:            core.KindLocalTool,
		Description:     "Book an appointment with a bank advisor",
		InputSchema:     ObjectSchema(map[string]any{"advisor_type": StringProperty("advisor type from list_advisors"), "topic": StringProperty("what to discuss"), "slot": StringProperty("preferred time, free text")}, "advisor_type", "topic"),
		Mutating:        true,
		Sensitive:       true,
		SummaryTemplate: "Book a {{.advisor_type}} advisor appointment about {{.topic}}",
		Lister:          "list_advisors",
		RequiredRef:     "advisor_type",
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			advisorType, _ := call.Arguments["advisor_type"].(string)
			if !b.knownAdvisor(advisorType) {
				return &core.ToolResult{Success: false, Error: fmt.Sprintf("no advisor of type %q", advisorType)}, nil
			}
			m := Meeting{
				MeetingID:   uuid.NewString(),
				UserID:      call.UserID,
				AdvisorType: advisorType,
				Topic:       asString(call.Arguments["topic"]),
				Slot:        asString(call.Arguments["slot"]),
			}
			b.mu.Lock()
			b.meetings[call.UserID] = append(b.meetings[call.UserID], m)
			b.mu.Unlock()
			return &core.ToolResult{Success: true, Data: m}, nil
		},
	}
}

func (b *Bank) knownAdvisor(advisorType string) bool {
	for _, a := range b.advisors {
		if a.AdvisorType == advisorType {
			return true
		}
	}
	return false
}

func (b *Bank) listMeetings() *core.Capability {
	return &core.Capability{
		Name:        "list_meetings",
		Kind:        core.KindLocalTool,
		Description: "List the user's booked advisor appointments",
		InputSchema: ObjectSchema(map[string]any{}),
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			meetings := b.meetings[call.UserID]
			if meetings == nil {
				meetings = []Meeting{}
			}
			return &core.ToolResult{Success: true, Data: meetings}, nil
		},
	}
}

func (b *Bank) cancelMeeting() *core.Capability {
	return &core.Capability{
		Name:            "cancel_meeting",
		Kind:            core.KindLocalTool,
		Description:     "Cancel a booked advisor appointment",
		InputSchema:     ObjectSchema(map[string]any{"meeting_id": StringProperty("identifier from list_meetings")}, "meeting_id"),
		Mutating:        true,
		Sensitive:       true,
		SummaryTemplate: "Cancel advisor appointment {{.meeting_id}}",
		Lister:          "list_meetings",
		RequiredRef:     "meeting_id",
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			id, _ := call.Arguments["meeting_id"].(string)
			b.mu.Lock()
			defer b.mu.Unlock()
			meetings := b.meetings[call.UserID]
			for i, m := range meetings {
				if m.MeetingID == id {
					b.meetings[call.UserID] = append(meetings[:i], meetings[i+1:]...)
					return &core.ToolResult{Success: true, Data: map[string]any{"meeting_id": id, "cancelled": true}}, nil
				}
			}
			return &core.ToolResult{Success: false, Error: fmt.Sprintf("no meeting %s", id)}, nil
		},
	}
}

func (b *Bank) sendEmail() *core.Capability {
	return &core.Capability{
		Name:            "send_email",
		Kind:            core.KindLocalTool,
		Description:     "Send a support email on the user's behalf, e.g. to dispute a charge",
		InputSchema:     ObjectSchema(map[string]any{"subject": StringProperty("email subject"), "body": StringProperty("email body")}, "subject", "body"),
		Mutating:        true,
		Sensitive:       true,
		SummaryTemplate: "Send a support email: {{.subject}}",
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			return &core.ToolResult{Success: true, Data: map[string]any{
				"message_id": uuid.NewString(),
				"subject":    call.Arguments["subject"],
				"status":     "sent",
			}}, nil
		},
	}
}

func (b *Bank) findDiscounts() *core.Capability {
	return &core.Capability{
		Name:        "find_discounts",
		Kind:        core.KindLocalTool,
		Description: "Find cheaper alternatives or promotions for a merchant the user pays regularly",
		InputSchema: ObjectSchema(map[string]any{"merchant": StringProperty("merchant to find savings for")}, "merchant"),
		Handler: func(_ context.Context, call *core.ToolCall) (*core.ToolResult, error) {
			merchant, _ := call.Arguments["merchant"].(string)
			offers := []map[string]any{
				{"merchant": merchant, "offer": "annual plan", "saving": "2 months free when paying yearly"},
				{"merchant": merchant, "offer": "loyalty tier", "saving": "10% off after 12 months of membership"},
			}
			if strings.EqualFold(merchant, "GymPass") {
				offers = append(offers, map[string]any{"merchant": merchant, "offer": "corporate rate", "saving": "ask your employer about the partner program"})
			}
			return &core.ToolResult{Success: true, Data: offers}, nil
		},
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
