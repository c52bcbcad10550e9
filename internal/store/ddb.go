package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	crerr "github.com/cockroachdb/errors"

	"github.com/tyler180/espn-league-backend/internal/league"
)

type DynamoDBAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Archive keeps a copy of every successful response. It is write-only: the
// handler never reads it back.
//
// Layout: PK=LeagueSeason (S, "<leagueId>#<season>"), SK=Item (S, "LEAGUE" or
// "TEAM#<id>").
type Archive struct {
	DB    DynamoDBAPI
	Table string
	// Backoff between UnprocessedItems retries; 120ms when zero.
	Backoff time.Duration
	Now     func() time.Time
}

const maxBatch = 25

func (a *Archive) PutLeague(ctx context.Context, leagueID, host string, body league.League) error {
	if a == nil || a.DB == nil || a.Table == "" {
		return nil
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	ts := strconv.FormatInt(now().Unix(), 10)
	pk := fmt.Sprintf("%s#%d", leagueID, body.Meta.Season)

	items := make([]map[string]types.AttributeValue, 0, len(body.Teams)+1)
	items = append(items, map[string]types.AttributeValue{
		"LeagueSeason": &types.AttributeValueMemberS{Value: pk}, // PK
		"Item":         &types.AttributeValueMemberS{Value: "LEAGUE"},
		"LeagueID":     &types.AttributeValueMemberS{Value: leagueID},
		"Season":       &types.AttributeValueMemberN{Value: strconv.Itoa(body.Meta.Season)},
		"LeagueName":   &types.AttributeValueMemberS{Value: body.Meta.LeagueName},
		"TeamCount":    &types.AttributeValueMemberN{Value: strconv.Itoa(len(body.Teams))},
		"Host":         &types.AttributeValueMemberS{Value: host},
		"UpdatedAt":    &types.AttributeValueMemberN{Value: ts},
	})
	// A batch may not put the same key twice, so ids that print alike
	// (1 and "1") keep only their first team.
	seen := make(map[string]bool, len(body.Teams))
	for _, t := range body.Teams {
		id := fmt.Sprint(t.ID)
		if t.ID == nil || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		item := map[string]types.AttributeValue{
			"LeagueSeason": &types.AttributeValueMemberS{Value: pk},
			"Item":         &types.AttributeValueMemberS{Value: "TEAM#" + id},
			"TeamID":       &types.AttributeValueMemberS{Value: id},
			"Name":         &types.AttributeValueMemberS{Value: t.Name},
			"Owner":        &types.AttributeValueMemberS{Value: t.Owner},
			"UpdatedAt":    &types.AttributeValueMemberN{Value: ts},
		}
		if t.Logo != nil {
			item["Logo"] = &types.AttributeValueMemberS{Value: *t.Logo}
		}
		items = append(items, item)
	}

	for i := 0; i < len(items); i += maxBatch {
		end := i + maxBatch
		if end > len(items) {
			end = len(items)
		}
		reqs := make([]types.WriteRequest, 0, end-i)
		for _, it := range items[i:end] {
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: it}})
		}
		if err := a.batchWriteWithRetry(ctx, reqs); err != nil {
			return crerr.Wrap(err, "batch write league snapshot")
		}
	}
	return nil
}

func (a *Archive) batchWriteWithRetry(ctx context.Context, reqs []types.WriteRequest) error {
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{a.Table: reqs},
	}
	const maxAttempts = 6
	step := a.Backoff
	if step <= 0 {
		step = 120 * time.Millisecond
	}
	backoff := step

	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := a.DB.BatchWriteItem(ctx, input)
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		input.RequestItems = out.UnprocessedItems
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff += step
		}
	}
	return crerr.Newf("unprocessed items remained after retries for table %s", a.Table)
}
