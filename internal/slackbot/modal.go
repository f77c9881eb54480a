package slackbot

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/slack-go/slack"

	"tradebot/internal/domain"
)

const tradeModalCallbackID = "trade_modal"

// Block and action IDs shared between modal construction and state parsing.
const (
	blockSymbol  = "symbol_block"
	blockSide    = "side_block"
	blockQty     = "qty_block"
	blockType    = "type_block"
	blockLimit   = "limit_block"
	actionSymbol = "symbol_input"
	actionSide   = "side_select"
	actionQty    = "qty_input"
	actionType   = "type_select"
	actionLimit  = "limit_input"
)

func plainText(s string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, s, false, false)
}

// buildTradeModal constructs the trade entry modal. channelID is stashed in
// private metadata so the submission handler knows where to post the result.
func buildTradeModal(channelID, prefillSymbol, prefillQty string) slack.ModalViewRequest {
	symbolInput := slack.NewPlainTextInputBlockElement(plainText("e.g. AAPL"), actionSymbol)
	symbolInput.InitialValue = prefillSymbol

	qtyInput := slack.NewPlainTextInputBlockElement(plainText("e.g. 10"), actionQty)
	qtyInput.InitialValue = prefillQty

	buyOpt := slack.NewOptionBlockObject(string(domain.OrderSideBuy), plainText("Buy"), nil)
	sellOpt := slack.NewOptionBlockObject(string(domain.OrderSideSell), plainText("Sell"), nil)
	sideSelect := slack.NewOptionsSelectBlockElement(
		slack.OptTypeStatic, plainText("Choose side"), actionSide, buyOpt, sellOpt)
	sideSelect.InitialOption = buyOpt

	marketOpt := slack.NewOptionBlockObject(string(domain.OrderTypeMarket), plainText("Market"), nil)
	limitOpt := slack.NewOptionBlockObject(string(domain.OrderTypeLimit), plainText("Limit"), nil)
	typeSelect := slack.NewOptionsSelectBlockElement(
		slack.OptTypeStatic, plainText("Choose order type"), actionType, marketOpt, limitOpt)
	typeSelect.InitialOption = marketOpt

	limitInput := slack.NewPlainTextInputBlockElement(plainText("e.g. 185.50"), actionLimit)

	limitBlock := slack.NewInputBlock(blockLimit,
		plainText("Limit price"), plainText("Required for limit orders."), limitInput)
	limitBlock.Optional = true

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      tradeModalCallbackID,
		PrivateMetadata: channelID,
		Title:           plainText("Place Trade"),
		Submit:          plainText("Submit"),
		Close:           plainText("Cancel"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewInputBlock(blockSymbol, plainText("Symbol"), nil, symbolInput),
			slack.NewInputBlock(blockSide, plainText("Side"), nil, sideSelect),
			slack.NewInputBlock(blockQty, plainText("Quantity"), nil, qtyInput),
			slack.NewInputBlock(blockType, plainText("Order type"), nil, typeSelect),
			limitBlock,
		}},
	}
}

// parseTradeModalState turns submitted modal state into a trade request. On
// bad input it returns a block_id→message map suitable for the
// "response_action": "errors" ack payload.
func parseTradeModalState(values map[string]map[string]slack.BlockAction) (*domain.TradeRequest, map[string]string) {
	fieldErrs := make(map[string]string)

	symbol := strings.ToUpper(strings.TrimSpace(values[blockSymbol][actionSymbol].Value))
	if symbol == "" {
		fieldErrs[blockSymbol] = "Symbol is required."
	}

	side := domain.OrderSide(values[blockSide][actionSide].SelectedOption.Value)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		fieldErrs[blockSide] = "Pick buy or sell."
	}

	qty, err := decimal.NewFromString(strings.TrimSpace(values[blockQty][actionQty].Value))
	if err != nil || !qty.IsPositive() {
		fieldErrs[blockQty] = "Quantity must be a positive number."
	}

	orderType := domain.OrderType(values[blockType][actionType].SelectedOption.Value)

	var limitPrice *decimal.Decimal
	rawLimit := strings.TrimSpace(values[blockLimit][actionLimit].Value)
	switch orderType {
	case domain.OrderTypeLimit:
		p, err := decimal.NewFromString(rawLimit)
		if err != nil || !p.IsPositive() {
			fieldErrs[blockLimit] = "Limit orders need a positive limit price."
		} else {
			limitPrice = &p
		}
	case domain.OrderTypeMarket:
		if rawLimit != "" {
			fieldErrs[blockLimit] = "Market orders cannot carry a limit price."
		}
	default:
		fieldErrs[blockType] = "Pick market or limit."
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}
	return &domain.TradeRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       orderType,
		Qty:        qty,
		LimitPrice: limitPrice,
	}, nil
}
