package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"restaurant-order-system/codec"
	"restaurant-order-system/config"
	"restaurant-order-system/logging"
	"restaurant-order-system/models"
	"restaurant-order-system/orderstatus"
	"restaurant-order-system/pricing"
	"restaurant-order-system/workflows"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// sampleCart is used when -lines is not given.
const sampleCart = `[
	{"product_id": "PIZZA-MARG", "name": "Margherita", "unit_price": "12.50", "quantity": 2},
	{"product_id": "TIRAMISU", "name": "Tiramisu", "unit_price": "4.00", "quantity": 1, "option_modifiers": ["0.50"]}
]`

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file (optional)")
	orderID := flag.String("order-id", "", "Order ID (optional, auto-generated if not provided)")
	customer := flag.String("customer", "", "Customer name")
	lines := flag.String("lines", "", "Cart lines as JSON (defaults to a sample cart)")
	promo := flag.String("promo", "", "Promotion code, e.g. WELCOME20")
	firstOrder := flag.Bool("first-order", false, "Customer has never ordered before")
	status := flag.String("status", "", "Move the order to this status (admin update)")
	actor := flag.String("actor", "admin", "Who requests the status change")
	reason := flag.String("reason", "", "Reason recorded with a status change or cancellation")
	cancelOrder := flag.Bool("cancel", false, "Cancel the order on behalf of the customer")
	query := flag.Bool("query", false, "Query workflow state")
	workflowID := flag.String("workflow-id", "", "Workflow ID for status/cancel/query operations")
	wait := flag.Bool("wait", false, "Wait for a started workflow to complete")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	zl, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	keyBytes, generated, err := codec.LoadKey(cfg.Temporal.EncryptionKey)
	if err != nil {
		logger.Fatalf("Invalid encryption key: %v", err)
	}
	if generated {
		logger.Warnf("Using generated encryption key %s. Set ENCRYPTION_KEY to match the worker.", hex.EncodeToString(keyBytes))
	}

	dataConverter, err := codec.NewEncryptionDataConverter(keyBytes)
	if err != nil {
		logger.Fatalf("Failed to create encryption data converter: %v", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:      cfg.Temporal.Address,
		Namespace:     cfg.Temporal.Namespace,
		DataConverter: dataConverter,
		Logger:        logging.NewTemporalAdapter(zl.WithOptions(zap.IncreaseLevel(zap.WarnLevel))),
	})
	if err != nil {
		logger.Fatalf("Unable to create Temporal client: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	target := *workflowID
	if target == "" && *orderID != "" {
		target = workflowIDFor(*orderID)
	}
	needsTarget := func(op string) {
		if target == "" {
			logger.Fatalf("Workflow ID is required for %s operations. Use -workflow-id or -order-id", op)
		}
	}

	switch {
	case *status != "":
		needsTarget("status")
		requested, err := orderstatus.Parse(*status)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		changeStatus(ctx, c, logger, target, models.StatusChangeRequest{Requested: requested, Actor: *actor, Reason: *reason})
	case *cancelOrder:
		needsTarget("cancel")
		sendCancel(ctx, c, logger, target, *reason)
	case *query:
		needsTarget("query")
		queryWorkflowState(ctx, c, logger, target)
	default:
		cart := *lines
		if cart == "" {
			cart = sampleCart
		}
		var parsed []pricing.CartLine
		if err := json.Unmarshal([]byte(cart), &parsed); err != nil {
			logger.Fatalf("Invalid -lines JSON: %v", err)
		}
		startWorkflow(ctx, c, logger, cfg, models.CheckoutRequest{
			OrderID:      *orderID,
			CustomerName: *customer,
			Lines:        parsed,
			PromoCode:    *promo,
			IsFirstOrder: *firstOrder,
			EnforceHours: cfg.Hours.Enforce,
			CreatedAt:    time.Now(),
		}, *wait)
	}
}

func workflowIDFor(orderID string) string {
	return fmt.Sprintf("order-workflow-%s", orderID)
}

func startWorkflow(ctx context.Context, c client.Client, logger *zap.SugaredLogger, cfg config.Config, req models.CheckoutRequest, wait bool) {
	if req.OrderID == "" {
		req.OrderID = uuid.New().String()
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        workflowIDFor(req.OrderID),
		TaskQueue: cfg.Temporal.TaskQueue,
	}

	logger.Infof("Starting workflow for order: %s (%d lines, promo %q)", req.OrderID, len(req.Lines), req.PromoCode)

	we, err := c.ExecuteWorkflow(ctx, workflowOptions, workflows.OrderWorkflowName, req)
	if err != nil {
		logger.Fatalf("Unable to execute workflow: %v", err)
	}

	logger.Infof("Started workflow WorkflowID=%s RunID=%s", we.GetID(), we.GetRunID())
	logger.Infof("Query:   go run ./starter -query -workflow-id %s", we.GetID())
	logger.Infof("Advance: go run ./starter -status confirmed -workflow-id %s", we.GetID())
	logger.Infof("Cancel:  go run ./starter -cancel -reason \"...\" -workflow-id %s", we.GetID())

	if !wait {
		return
	}
	logger.Info("Waiting for workflow to complete...")
	if err := we.Get(ctx, nil); err != nil {
		logger.Errorf("Workflow completed with error: %v", err)
		return
	}
	logger.Info("Workflow completed successfully!")
}

func changeStatus(ctx context.Context, c client.Client, logger *zap.SugaredLogger, workflowID string, req models.StatusChangeRequest) {
	logger.Infof("Requesting status %s for workflow: %s", req.Requested, workflowID)

	handle, err := c.UpdateWorkflow(ctx, client.UpdateWorkflowOptions{
		WorkflowID:   workflowID,
		UpdateName:   workflows.UpdateTransitionStatus,
		Args:         []interface{}{req},
		WaitForStage: client.WorkflowUpdateStageCompleted,
	})
	if err != nil {
		logger.Fatalf("Status change rejected: %v", err)
	}

	var applied orderstatus.Status
	if err := handle.Get(ctx, &applied); err != nil {
		logger.Fatalf("Status change failed: %v", err)
	}
	logger.Infof("Order is now %s", applied)
}

func sendCancel(ctx context.Context, c client.Client, logger *zap.SugaredLogger, workflowID, reason string) {
	logger.Infof("Cancelling order of workflow: %s", workflowID)

	if err := c.SignalWorkflow(ctx, workflowID, "", workflows.SignalCancel, reason); err != nil {
		logger.Fatalf("Failed to send signal: %v", err)
	}
	logger.Info("Cancellation sent; query the workflow to see whether it was applied")
}

func queryWorkflowState(ctx context.Context, c client.Client, logger *zap.SugaredLogger, workflowID string) {
	logger.Infof("Querying workflow state: %s", workflowID)

	resp, err := c.QueryWorkflow(ctx, workflowID, "", workflows.QueryState)
	if err != nil {
		logger.Fatalf("Failed to query workflow: %v", err)
	}

	var state models.WorkflowState
	if err := resp.Get(&state); err != nil {
		logger.Fatalf("Failed to decode query result: %v", err)
	}

	stateJSON, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		logger.Fatalf("Failed to marshal state: %v", err)
	}

	fmt.Println(string(stateJSON))
	if allowed := orderstatus.Allowed(state.Status); len(allowed) > 0 {
		fmt.Printf("Allowed next statuses: %v\n", allowed)
	}
}
