package workflow

// Standardized reasons stored in SkuInventoryLog.reason and FinancialRecord.description.
const (
	ReasonProduction            = "Production batch"
	ReasonRestock               = "Restock from remaining material"
	ReasonSale                  = "Sale"
	ReasonDestroy               = "Destroyed"
	ReasonDestroyWithReturn     = "Destroyed, materials returned to stock"
	ReasonPurchase              = "Material purchase"
	ReasonCapitalizedProduction = "Capitalized production cost"
	ReasonProductionCostReverse = "Capitalized production cost reversed on destroy"
)
