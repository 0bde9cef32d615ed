// Package main provides the entry point for the approval engine
// operations server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"approvalflow"
	"approvalflow/admin"
	circuitmem "approvalflow/circuit/memory"
	"approvalflow/event"
	lockmem "approvalflow/lock/memory"
	"approvalflow/notify"
	"approvalflow/remind"
	storemem "approvalflow/store/memory"
)

func main() {
	store := storemem.NewMemoryStore()

	eventBus := event.NewMemoryEventBus()
	eventStore := admin.NewEventStore(1000)
	eventBus.SubscribeAll(eventStore.EventHandler())

	notifier := notify.NewMemoryNotifier()
	dispatcher := notify.NewDispatcher(notifier,
		notify.WithBreaker(circuitmem.NewMemoryBreaker()),
		notify.WithFailureHandler(func(n notify.Notification, err error) {
			eventBus.Publish(context.Background(), event.NewEvent(event.EventNotifyFailed).
				WithRequest(n.RequestID, n.RequestNumber).
				WithStage(n.Stage).
				WithData("user_id", n.UserID).
				WithError(err))
		}),
	)

	engine := approvalflow.NewEngine(
		approvalflow.WithEngineStore(store),
		approvalflow.WithEngineLocker(lockmem.NewMemoryLocker()),
		approvalflow.WithEngineDispatcher(dispatcher),
		approvalflow.WithEngineEventBus(eventBus),
	)

	reminder := remind.NewWorker(
		remind.WithStore(store),
		remind.WithDispatcher(dispatcher),
		remind.WithEventBus(eventBus),
	)

	server := admin.NewServer(
		admin.WithAddr(":8081"),
		admin.WithEngine(engine),
		admin.WithReminder(reminder),
		admin.WithEventStore(eventStore),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reminder.Start(ctx); err != nil {
		log.Fatalf("start reminder worker: %v", err)
	}

	if err := addDemoData(ctx, engine); err != nil {
		log.Printf("demo data: %v", err)
	}

	go func() {
		fmt.Println("operations server listening on http://localhost:8081")
		if err := server.Start(); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Stop(shutdownCtx)
	reminder.Stop()
	dispatcher.Wait()
}

// addDemoData seeds a request and walks it one stage so the API has
// something to show.
func addDemoData(ctx context.Context, engine *approvalflow.Engine) error {
	req, err := engine.NewRequest("trip").
		WithRequester("u-1001", "Dana Reyes").
		WithDepartment("dept-eng", false).
		WithExpense("Transport", 1200, "round trip airfare").
		WithExpense("Accommodation", 1800, "three nights").
		Build()
	if err != nil {
		return err
	}

	result, err := engine.Submit(ctx, req)
	if err != nil {
		return err
	}

	_, err = engine.Decide(ctx, approvalflow.Decision{
		RequestID: result.Request.ID,
		Action:    approvalflow.ActionApprove,
		Role:      approvalflow.RoleHead,
		ActorID:   "u-2001",
		ActorName: "Morgan Lee",
		Signature: "sig-head-2001",
		Comments:  "travel plan looks reasonable",
	})
	return err
}
