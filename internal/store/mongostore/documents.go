package mongostore

import (
	"strings"
	"time"

	"github.com/agrichain/marketplace/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Documents mirror the models with bson tags. Money is stored as Decimal128
// so amounts stay exact inside the database.

type accountDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	EmailKey     string    `bson:"email_key"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	PhoneNumber  string    `bson:"phone_number,omitempty"`
	Address      string    `bson:"address,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func newAccountDoc(a *models.Account) accountDoc {
	return accountDoc{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		EmailKey:     emailKey(a.Email),
		PasswordHash: a.PasswordHash,
		Role:         string(a.Role),
		PhoneNumber:  a.PhoneNumber,
		Address:      a.Address,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (d accountDoc) model() models.Account {
	return models.Account{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         models.Role(d.Role),
		PhoneNumber:  d.PhoneNumber,
		Address:      d.Address,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type cartLineDoc struct {
	ProductID string               `bson:"product"`
	Quantity  int                  `bson:"quantity"`
	Name      string               `bson:"name"`
	Price     primitive.Decimal128 `bson:"price"`
}

type cartDoc struct {
	CustomerID string        `bson:"_id"`
	Lines      []cartLineDoc `bson:"lines"`
	UpdatedAt  time.Time     `bson:"updated_at"`
}

type productLineDoc struct {
	ID                  string     `bson:"_id"`
	Name                string     `bson:"name"`
	FarmerID            string     `bson:"farmer_id"`
	Location            string     `bson:"location,omitempty"`
	CultivationProcess  string     `bson:"cultivation_process,omitempty"`
	PackagingUnit       string     `bson:"packaging_unit,omitempty"`
	Certifications      string     `bson:"certifications,omitempty"`
	HarvestDate         *time.Time `bson:"harvest_date,omitempty"`
	BatchID             string     `bson:"batch_id"`
	TransportationRoute string     `bson:"transportation_route,omitempty"`
	Description         string     `bson:"description,omitempty"`
	Image               string     `bson:"image,omitempty"`
	QRCode              string     `bson:"qr_code,omitempty"`
	Status              string     `bson:"status"`
	CreatedAt           time.Time  `bson:"created_at"`
	UpdatedAt           time.Time  `bson:"updated_at"`
}

func newProductLineDoc(l *models.ProductLine) productLineDoc {
	return productLineDoc{
		ID:                  l.ID,
		Name:                l.Name,
		FarmerID:            l.FarmerID,
		Location:            l.Location,
		CultivationProcess:  l.CultivationProcess,
		PackagingUnit:       l.PackagingUnit,
		Certifications:      l.Certifications,
		HarvestDate:         l.HarvestDate,
		BatchID:             l.BatchID,
		TransportationRoute: l.TransportationRoute,
		Description:         l.Description,
		Image:               l.Image,
		QRCode:              l.QRCode,
		Status:              string(l.Status),
		CreatedAt:           l.CreatedAt,
		UpdatedAt:           l.UpdatedAt,
	}
}

func (d productLineDoc) model() models.ProductLine {
	return models.ProductLine{
		ID:                  d.ID,
		Name:                d.Name,
		FarmerID:            d.FarmerID,
		Location:            d.Location,
		CultivationProcess:  d.CultivationProcess,
		PackagingUnit:       d.PackagingUnit,
		Certifications:      d.Certifications,
		HarvestDate:         d.HarvestDate,
		BatchID:             d.BatchID,
		TransportationRoute: d.TransportationRoute,
		Description:         d.Description,
		Image:               d.Image,
		QRCode:              d.QRCode,
		Status:              models.ProductLineStatus(d.Status),
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

type productDoc struct {
	ID            string               `bson:"_id"`
	ProductLineID string               `bson:"product_line_id"`
	FarmerID      string               `bson:"farmer_id"`
	Name          string               `bson:"name"`
	Price         primitive.Decimal128 `bson:"price"`
	Quantity      int                  `bson:"quantity"`
	Unit          string               `bson:"unit"`
	Image         string               `bson:"image,omitempty"`
	CreatedAt     time.Time            `bson:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at"`
}

func newProductDoc(p *models.Product) (productDoc, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDoc{}, err
	}
	return productDoc{
		ID:            p.ID,
		ProductLineID: p.ProductLineID,
		FarmerID:      p.FarmerID,
		Name:          p.Name,
		Price:         price,
		Quantity:      p.Quantity,
		Unit:          p.Unit,
		Image:         p.Image,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}, nil
}

func (d productDoc) model() (models.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return models.Product{}, err
	}
	return models.Product{
		ID:            d.ID,
		ProductLineID: d.ProductLineID,
		FarmerID:      d.FarmerID,
		Name:          d.Name,
		Price:         price,
		Quantity:      d.Quantity,
		Unit:          d.Unit,
		Image:         d.Image,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

type orderLineDoc struct {
	ProductID     string               `bson:"product"`
	ProductLineID string               `bson:"product_line,omitempty"`
	FarmerID      string               `bson:"farmer,omitempty"`
	Name          string               `bson:"name"`
	Unit          string               `bson:"unit"`
	Quantity      int                  `bson:"quantity"`
	Price         primitive.Decimal128 `bson:"price"`
}

type orderDoc struct {
	ID         string               `bson:"_id"`
	CustomerID string               `bson:"customer"`
	FarmerID   string               `bson:"farmer,omitempty"`
	Lines      []orderLineDoc       `bson:"products"`
	TotalPrice primitive.Decimal128 `bson:"total_price"`
	Status     string               `bson:"status"`
	CreatedAt  time.Time            `bson:"created_at"`
}

func newOrderDoc(o *models.Order) (orderDoc, error) {
	total, err := toDecimal128(o.TotalPrice)
	if err != nil {
		return orderDoc{}, err
	}
	lines := make([]orderLineDoc, len(o.Lines))
	for i, l := range o.Lines {
		price, err := toDecimal128(l.Price)
		if err != nil {
			return orderDoc{}, err
		}
		lines[i] = orderLineDoc{
			ProductID:     l.ProductID,
			ProductLineID: l.ProductLineID,
			FarmerID:      l.FarmerID,
			Name:          l.Name,
			Unit:          l.Unit,
			Quantity:      l.Quantity,
			Price:         price,
		}
	}
	return orderDoc{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		FarmerID:   o.FarmerID,
		Lines:      lines,
		TotalPrice: total,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
	}, nil
}

func (d orderDoc) model() (models.Order, error) {
	total, err := fromDecimal128(d.TotalPrice)
	if err != nil {
		return models.Order{}, err
	}
	lines := make([]models.OrderLine, len(d.Lines))
	for i, l := range d.Lines {
		price, err := fromDecimal128(l.Price)
		if err != nil {
			return models.Order{}, err
		}
		lines[i] = models.OrderLine{
			ProductID:     l.ProductID,
			ProductLineID: l.ProductLineID,
			FarmerID:      l.FarmerID,
			Name:          l.Name,
			Unit:          l.Unit,
			Quantity:      l.Quantity,
			Price:         price,
		}
	}
	return models.Order{
		ID:         d.ID,
		CustomerID: d.CustomerID,
		FarmerID:   d.FarmerID,
		Lines:      lines,
		TotalPrice: total,
		Status:     models.OrderStatus(d.Status),
		CreatedAt:  d.CreatedAt,
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}
