package providers

import (
	"github.com/learnsphere/tutorpay/internal/providers/email"
	"github.com/learnsphere/tutorpay/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
