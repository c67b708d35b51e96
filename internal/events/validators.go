package events

import "github.com/gamesignals/beacon/internal/validate"

// validateBusinessEvent checks a purchase before it reaches the outbox.
// Amounts are unconstrained (refunds are negative); cart type may be empty.
func (d *Dispatcher) validateBusinessEvent(currency, cartType, itemType, itemID string) bool {
	if !validate.Currency(currency) {
		d.log.Warningf("Validation fail - business event - currency: Cannot be (null) and need to be A-Z, 3 characters and in the standard at openexchangerates.org. Failed currency: %s", currency)
		return false
	}
	if !validate.ShortString(cartType, true) {
		d.log.Warningf("Validation fail - business event - cartType. Cannot be above 32 length. String: %s", cartType)
		return false
	}
	if !validate.EventPartLength(itemType, false) {
		d.log.Warningf("Validation fail - business event - itemType: Cannot be (null), empty or above 64 characters. String: %s", itemType)
		return false
	}
	if !validate.EventPartCharacters(itemType) {
		d.log.Warningf("Validation fail - business event - itemType: Item type can only contain numbers, letters and these characters !?-_.() String: %s", itemType)
		return false
	}
	if !validate.EventPartLength(itemID, false) {
		d.log.Warningf("Validation fail - business event - itemId. Cannot be (null), empty or above 64 characters. String: %s", itemID)
		return false
	}
	if !validate.EventPartCharacters(itemID) {
		d.log.Warningf("Validation fail - business event - itemId: Item id can only contain numbers, letters and these characters !?-_.() String: %s", itemID)
		return false
	}
	return true
}

// validateResourceEvent checks a virtual-currency flow against the configured
// whitelists. Amounts must be strictly positive; the dispatcher flips the
// sign for sinks afterwards.
func (d *Dispatcher) validateResourceEvent(flowType ResourceFlowType, currency string, amount float64, itemType, itemID string) bool {
	if flowType.String() == "" {
		d.log.Warning("Validation fail - resource event - flowType: Invalid flow type.")
		return false
	}
	if currency == "" {
		d.log.Warning("Validation fail - resource event - currency: Cannot be (null)")
		return false
	}
	if !d.state.HasResourceCurrency(currency) {
		d.log.Warningf("Validation fail - resource event - currency: Not found in list of pre-defined available resource currencies. String: %s", currency)
		return false
	}
	if amount <= 0 {
		d.log.Warningf("Validation fail - resource event - amount: Float amount cannot be 0 or negative. Float: %v", amount)
		return false
	}
	if itemType == "" {
		d.log.Warning("Validation fail - resource event - itemType: Cannot be (null)")
		return false
	}
	if !validate.EventPartLength(itemType, false) {
		d.log.Warningf("Validation fail - resource event - itemType: Cannot be (null), empty or above 64 characters. String: %s", itemType)
		return false
	}
	if !validate.EventPartCharacters(itemType) {
		d.log.Warningf("Validation fail - resource event - itemType: Item type can only contain numbers, letters and these characters !?-_.() String: %s", itemType)
		return false
	}
	if !d.state.HasResourceItemType(itemType) {
		d.log.Warningf("Validation fail - resource event - itemType: Not found in list of pre-defined available resource itemTypes. String: %s", itemType)
		return false
	}
	if !validate.EventPartLength(itemID, false) {
		d.log.Warningf("Validation fail - resource event - itemId: Cannot be (null), empty or above 64 characters. String: %s", itemID)
		return false
	}
	if !validate.EventPartCharacters(itemID) {
		d.log.Warningf("Validation fail - resource event - itemId: Item id can only contain numbers, letters and these characters !?-_.() String: %s", itemID)
		return false
	}
	return true
}
