package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// InvoiceData is everything the payout invoice shows. All money fields arrive
// preformatted; rendering never does arithmetic.
type InvoiceData struct {
	PlatformName  string
	PlatformEmail string

	InvoiceNumber string
	IssueDate     string
	PayoutRef     string
	ServicePeriod string
	Narration     string

	EducatorName  string
	EducatorEmail string

	Items []InvoiceItem

	// Gross and Commission are blank when the payout predates commission
	// tracking; Total is always the net amount transferred.
	Gross      string
	Commission string
	Total      string

	Footer string
}

type InvoiceItem struct {
	Description string
	Qty         int
	Amount      string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(10,
		text.NewCol(12, "Payout Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+data.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+data.IssueDate, props.Text{Top: 4}),
			text.New("Payout reference: "+data.PayoutRef, props.Text{Top: 8}),
			text.New("Service period: "+data.ServicePeriod, props.Text{Top: 12}),
		),
		col.New(6),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New(data.PlatformName, props.Text{Style: fontstyle.Bold}),
			text.New(data.PlatformEmail, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Paid to", props.Text{Style: fontstyle.Bold}),
			text.New(data.EducatorName, props.Text{Top: 5}),
			text.New(data.EducatorEmail, props.Text{Top: 9}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range data.Items {
		m.AddRow(12,
			text.NewCol(8, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	if data.Gross != "" {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, "Gross", props.Text{Size: 9}),
			text.NewCol(2, data.Gross, props.Text{Size: 9, Align: align.Right}),
		)
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, "Commission", props.Text{Size: 9}),
			text.NewCol(2, "-"+data.Commission, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if data.Narration != "" {
		m.AddRow(10,
			text.NewCol(12, "Narration: "+data.Narration, props.Text{Size: 8, Top: 4}),
		)
	}

	if data.Footer != "" {
		m.AddRow(20,
			text.NewCol(12, data.Footer, props.Text{Size: 8, Top: 8}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
